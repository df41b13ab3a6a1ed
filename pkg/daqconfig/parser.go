package daqconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// Parser parses and validates the daemon's CUE configuration sources.
type Parser struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewParser returns a Parser with the built-in schemas loaded and the
// "alphanum_dash" struct-tag validator registered for device/daemon IDs.
func NewParser() *Parser {
	v := validator.New()
	v.RegisterValidation("alphanum_dash", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return false
		}
		for _, r := range s {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
				return false
			}
		}
		return true
	})
	return &Parser{
		ctx:       cuecontext.New(),
		schemas:   NewSchemaRegistry(),
		validator: v,
	}
}

// SchemaRegistry returns the parser's schema registry.
func (p *Parser) SchemaRegistry() *SchemaRegistry {
	return p.schemas
}

// Parse loads and unifies every source (file or directory) and decodes
// the result into a ParsedConfig. Parse errors are reported in
// ParsedConfig.Errors rather than as a returned error; the returned
// error is reserved for conditions that make the sources entirely
// unusable (e.g. a source path that doesn't exist).
func (p *Parser) Parse(ctx context.Context, sources []string) (*ParsedConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("daqconfig: no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("daqconfig: stat %s: %w", source, err)
		}

		var val cue.Value
		var files []string
		var errs []ValidationError
		if info.IsDir() {
			val, files, errs = p.loadDirectory(source)
		} else {
			val, errs = p.loadFile(source)
			files = []string{source}
		}

		parseErrors = append(parseErrors, errs...)
		if val.Exists() {
			if cueValue.Exists() {
				cueValue = cueValue.Unify(val)
			} else {
				cueValue = val
			}
		}
		sourceFiles = append(sourceFiles, files...)
	}

	if len(parseErrors) > 0 {
		return &ParsedConfig{SourceFiles: sourceFiles, ParsedAt: time.Now(), Errors: parseErrors}, nil
	}

	if err := cueValue.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      p.convertCUEErrors(err),
		}, nil
	}

	return p.extractConfig(cueValue, sourceFiles)
}

// ParseInline parses CUE content that isn't backed by a file, used by
// tests and by programmatic callers that build configuration in memory.
func (p *Parser) ParseInline(ctx context.Context, content string) (*ParsedConfig, error) {
	val := p.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      p.convertCUEErrors(err),
		}, nil
	}
	return p.extractConfig(val, []string{"inline"})
}

func (p *Parser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	instances := load.Instances([]string{dir}, nil)
	if len(instances) == 0 {
		return cue.Value{}, nil, []ValidationError{{File: dir, Message: "no CUE files found", Severity: "error"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, p.convertCUEErrors(inst.Err)
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, p.convertCUEErrors(err)
	}

	var files []string
	for _, f := range inst.Files {
		if f.Filename != "" {
			files = append(files, f.Filename)
		}
	}
	return val, files, nil
}

func (p *Parser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{File: path, Message: fmt.Sprintf("read file: %v", err), Severity: "error"}}
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, p.convertCUEErrors(err)
	}
	return val, nil
}

// extractConfig decodes the daemon and devices sub-trees out of a
// unified CUE value, validating each device and the daemon settings
// against the struct tags in types.go. The built-in CUE schemas in the
// parser's SchemaRegistry are not applied here.
func (p *Parser) extractConfig(val cue.Value, sourceFiles []string) (*ParsedConfig, error) {
	pc := &ParsedConfig{SourceFiles: sourceFiles, ParsedAt: time.Now()}

	if daemonVal := val.LookupPath(cue.ParsePath("daemon")); daemonVal.Exists() {
		daemon, err := p.decodeDaemon(daemonVal)
		if err != nil {
			pc.Errors = append(pc.Errors, ValidationError{Path: "daemon", Message: err.Error(), Severity: "error"})
		} else if err := p.validator.Struct(daemon); err != nil {
			pc.Errors = append(pc.Errors, ValidationError{Path: "daemon", Message: err.Error(), Severity: "error"})
		} else {
			pc.Daemon = daemon
		}
	}

	if devicesVal := val.LookupPath(cue.ParsePath("devices")); devicesVal.Exists() {
		switch devicesVal.Kind() {
		case cue.StructKind:
			iter, err := devicesVal.Fields(cue.All())
			if err != nil {
				pc.Errors = append(pc.Errors, ValidationError{Path: "devices", Message: err.Error(), Severity: "error"})
				break
			}
			for iter.Next() {
				p.extractDevice(pc, iter.Selector().String(), iter.Value())
			}
		case cue.ListKind:
			list, err := devicesVal.List()
			if err != nil {
				pc.Errors = append(pc.Errors, ValidationError{Path: "devices", Message: err.Error(), Severity: "error"})
				break
			}
			idx := 0
			for list.Next() {
				p.extractDevice(pc, fmt.Sprintf("[%d]", idx), list.Value())
				idx++
			}
		}
	}

	return pc, nil
}

func (p *Parser) extractDevice(pc *ParsedConfig, key string, val cue.Value) {
	var device DeviceConfig
	if err := val.Decode(&device); err != nil {
		pc.Errors = append(pc.Errors, ValidationError{
			Path: "devices." + key, Message: fmt.Sprintf("decode: %v", err), Severity: "error",
		})
		return
	}
	if device.ID == "" && key != "" {
		device.ID = key
	}
	if err := p.validator.Struct(device); err != nil {
		pc.Errors = append(pc.Errors, ValidationError{
			Path: "devices." + key, Message: fmt.Sprintf("validation: %v", err), Severity: "error",
		})
		return
	}
	pc.Fleet.Devices = append(pc.Fleet.Devices, device)
}

// rawDaemon mirrors DaemonConfig with string duration fields, since CUE
// has no duration kind of its own.
type rawDaemon struct {
	RingSizeBytes   int    `json:"ring_size_bytes"`
	FlushInterval   string `json:"flush_interval"`
	DefaultDeadline string `json:"default_deadline"`
	ArchivePath     string `json:"archive_path"`
	SidecarPath     string `json:"sidecar_path"`
	SafetyPolicyDir string `json:"safety_policy_dir"`
}

func (p *Parser) decodeDaemon(val cue.Value) (DaemonConfig, error) {
	var raw rawDaemon
	if err := val.Decode(&raw); err != nil {
		return DaemonConfig{}, fmt.Errorf("decode: %w", err)
	}

	flush, err := time.ParseDuration(raw.FlushInterval)
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("flush_interval: %w", err)
	}
	deadline, err := time.ParseDuration(raw.DefaultDeadline)
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("default_deadline: %w", err)
	}

	return DaemonConfig{
		RingSizeBytes:   raw.RingSizeBytes,
		FlushInterval:   flush,
		DefaultDeadline: deadline,
		ArchivePath:     raw.ArchivePath,
		SidecarPath:     raw.SidecarPath,
		SafetyPolicyDir: raw.SafetyPolicyDir,
	}, nil
}

func (p *Parser) convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int
		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		out = append(out, ValidationError{
			File: file, Line: line, Column: column,
			Message: errors.Details(e, nil), Severity: "error",
		})
	}
	return out
}

// LoadFromDirectory returns every .cue file under dir, for callers that
// want to pass an explicit file list to Parse rather than the directory
// itself.
func (p *Parser) LoadFromDirectory(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("daqconfig: walk %s: %w", dir, err)
	}
	return files, nil
}
