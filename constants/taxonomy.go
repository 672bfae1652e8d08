package constants

// Side marks a budget item as money coming in or going out.
type Side string

const (
	SideRevenue Side = "REVENUE"
	SideExpense Side = "EXPENSE"
)

// Category is one of the fixed taxonomy labels. The taxonomy is not
// configurable at runtime: every persisted item must carry one of the
// 5 revenue or 8 expense labels below.
type Category string

const (
	// Revenue (5)
	PersonalTaxes               Category = "Personal taxes"
	CorporateTaxes              Category = "Corporate taxes"
	TaxesOnPurchases            Category = "Taxes on purchases"
	SocialSecurityContributions Category = "Social security contributions"
	OtherRevenue                Category = "Other revenue"

	// Expense (8)
	Health                    Category = "Health"
	Education                 Category = "Education"
	PensionsSocialSupport     Category = "Pensions & social support"
	RunningTheGovernment      Category = "Running the government"
	SecurityDefense           Category = "Security & defense"
	Justice                   Category = "Justice"
	InfrastructureEnvironment Category = "Infrastructure & environment"
	PublicDebt                Category = "Public debt"
)

var revenueCategories = []Category{
	PersonalTaxes,
	CorporateTaxes,
	TaxesOnPurchases,
	SocialSecurityContributions,
	OtherRevenue,
}

var expenseCategories = []Category{
	Health,
	Education,
	PensionsSocialSupport,
	RunningTheGovernment,
	SecurityDefense,
	Justice,
	InfrastructureEnvironment,
	PublicDebt,
}

// CategoriesFor returns the taxonomy labels for one side.
func CategoriesFor(side Side) []Category {
	if side == SideRevenue {
		return revenueCategories
	}
	return expenseCategories
}

// CategoryNamesFor returns the labels for one side as plain strings,
// in the shape prompt builders and JSON schemas want them.
func CategoryNamesFor(side Side) []string {
	cats := CategoriesFor(side)
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

// ValidCategory reports whether label is a taxonomy member for the given
// side. Labels from the opposite side's list are invalid.
func ValidCategory(side Side, label string) bool {
	for _, c := range CategoriesFor(side) {
		if string(c) == label {
			return true
		}
	}
	return false
}

// ValidSide reports whether s is one of the two known sides.
func ValidSide(s string) bool {
	return s == string(SideRevenue) || s == string(SideExpense)
}
