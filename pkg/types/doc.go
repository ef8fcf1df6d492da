/*
Package types defines the agent's data model: task descriptors, reports,
and the small enums the wire protocol and registry key on.

A Descriptor is immutable once created by an ADD command. A Report is
produced by a Collector invocation and is either a bare value (empty
Message) or carries an "ERROR CAUSE X" / "FATAL CAUSE X" message — see
Report.Fatal.

Enums (TaskType, MetricType, OptionType) are typed strings matching the
wire literals exactly, so ParseTaskType et al. double as wire validation.
*/
package types
