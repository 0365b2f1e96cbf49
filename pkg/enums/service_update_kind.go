package enums

// ServiceUpdateKind labels the discrete catalog-sync mutations recorded for
// audit.
type ServiceUpdateKind string

const (
	ServiceUpdateDisabled    ServiceUpdateKind = "disabled"
	ServiceUpdateEnabled     ServiceUpdateKind = "enabled"
	ServiceUpdateRateChanged ServiceUpdateKind = "rate_changed"
)

func (k ServiceUpdateKind) IsValid() bool {
	switch k {
	case ServiceUpdateDisabled, ServiceUpdateEnabled, ServiceUpdateRateChanged:
		return true
	}
	return false
}
