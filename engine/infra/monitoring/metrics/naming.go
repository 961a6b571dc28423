package metrics

import "strings"

// Prefix namespaces every exported metric.
const Prefix = "techrag"

// MetricName prefixes name with the service namespace unless it already carries it.
func MetricName(name string) string {
	if strings.HasPrefix(name, Prefix+"_") {
		return name
	}
	return Prefix + "_" + name
}

// MetricNameWithSubsystem builds <prefix>_<subsystem>_<name>.
func MetricNameWithSubsystem(subsystem, name string) string {
	if strings.HasPrefix(name, Prefix+"_") {
		return name
	}
	subsystem = strings.Trim(subsystem, "_")
	switch {
	case subsystem == "":
		return MetricName(name)
	case name == "":
		return Prefix + "_" + subsystem
	default:
		return Prefix + "_" + subsystem + "_" + name
	}
}
