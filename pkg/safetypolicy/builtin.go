package safetypolicy

// GetBuiltinPolicies returns the policies enabled by default on a new
// Engine: motion-range containment, a plan-size ceiling, and a
// production dry-run guard for plans moving more than one axis.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		motionRangePolicy(),
		planSizeCeilingPolicy(),
		productionDryRunPolicy(),
	}
}

// motionRangePolicy forbids admitting a scan whose declared axis range
// falls outside the device's declared safe travel limits.
func motionRangePolicy() Policy {
	return Policy{
		Name:        "motion-range",
		Description: "Scan axis ranges must stay within each device's declared travel limits",
		Severity:    SeverityCritical,
		Enabled:     true,
		Rego: `package safetypolicy.motion

import rego.v1

axis_params := {"start", "stop", "outer_start", "outer_stop", "inner_start", "inner_stop"}

deny contains violation if {
	some role, limit in input.device_limits
	some param_name, raw_value in input.params
	param_name in axis_params
	startswith(param_name, role)
	value := to_number(raw_value)
	value < limit.min

	violation := {
		"message": sprintf("%s=%v is below device %q's declared minimum %v", [param_name, value, role, limit.min]),
		"severity": "critical",
	}
}

deny contains violation if {
	some role, limit in input.device_limits
	some param_name, raw_value in input.params
	param_name in axis_params
	startswith(param_name, role)
	value := to_number(raw_value)
	value > limit.max

	violation := {
		"message": sprintf("%s=%v exceeds device %q's declared maximum %v", [param_name, value, role, limit.max]),
		"severity": "critical",
	}
}`,
	}
}

// planSizeCeilingPolicy warns (without blocking) on a plan large enough
// that an operator likely meant a smaller scan.
func planSizeCeilingPolicy() Policy {
	return Policy{
		Name:        "plan-size-ceiling",
		Description: "Warns when a plan's declared point count exceeds 50,000",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package safetypolicy.size

import rego.v1

max_recommended_points := 50000

deny contains violation if {
	input.num_points > max_recommended_points

	violation := {
		"message": sprintf("plan %q declares %d points, above the recommended ceiling of %d", [input.plan_name, input.num_points, max_recommended_points]),
		"severity": "warning",
	}
}`,
	}
}

// productionDryRunPolicy blocks multi-axis plans in a production
// environment unless explicitly marked dry_run, mirroring the
// destructive-operation guard pattern but applied to motion safety
// rather than resource deletion.
func productionDryRunPolicy() Policy {
	return Policy{
		Name:        "production-dry-run",
		Description: "Requires dry_run for multi-axis plans in the production environment",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package safetypolicy.environment

import rego.v1

deny contains violation if {
	input.environment == "production"
	count(input.movers) > 1
	not input.dry_run

	violation := {
		"message": sprintf("plan %q moves %d axes in production without dry_run", [input.plan_name, count(input.movers)]),
		"severity": "error",
	}
}`,
	}
}
