// Package remote is the SSH/SFTP gateway for instruments whose control
// surface is a remote host, not a local bus: a command run over SSH
// reads or sets hardware state, and bulky results (frame dumps, log
// files) are pulled back over SFTP rather than returned on stdout. A
// Client wraps one authenticated connection; CommandDevice adapts it to
// the capability.ReadableDevice and capability.MovableDevice interfaces
// by running a configured command template and parsing its stdout.
//
// Grounded on this codebase's pkg/transports/ssh package: Config keeps
// the same authentication/host-key/timeout shape (golang.org/x/crypto/ssh
// plus knownhosts), Client plays the role ssh.SSHClient plays, and file
// transfer is adapted from file_transfer.go but backed by
// github.com/pkg/sftp instead of hand-rolled SFTP-protocol framing.
package remote
