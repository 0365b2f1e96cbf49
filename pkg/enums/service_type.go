package enums

// ServiceType distinguishes services by the shape of their order payload.
type ServiceType string

const (
	// ServiceTypeDefault takes a link and a quantity.
	ServiceTypeDefault ServiceType = "default"
	// ServiceTypeCustomComments takes one comment per ordered unit.
	ServiceTypeCustomComments ServiceType = "custom_comments"
)

func (t ServiceType) IsValid() bool {
	return t == ServiceTypeDefault || t == ServiceTypeCustomComments
}

// RequiresComments reports whether orders for this type must carry an
// itemized comment list matching the quantity.
func (t ServiceType) RequiresComments() bool {
	return t == ServiceTypeCustomComments
}
