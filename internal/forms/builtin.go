package forms

// Insurance lines offered for quotes.
var Lines = []string{"auto", "home", "life", "business"}

// ContactFormID is the id of the contact form.
const ContactFormID = "contact"

// QuoteFormID returns the form id for a quote on line.
func QuoteFormID(line string) string {
	return "quote-" + line
}

const zipPattern = `^\d{5}(-\d{4})?$`

func contactFields() []Field {
	return []Field{
		{Name: "first_name", Label: "First name", Type: TypeText, Required: true, MinLength: 1, MaxLength: 50},
		{Name: "last_name", Label: "Last name", Type: TypeText, Required: true, MinLength: 1, MaxLength: 50},
		{Name: "email", Label: "Email", Type: TypeEmail, Required: true, MaxLength: 254, Placeholder: "you@example.com"},
		{Name: "phone", Label: "Phone", Type: TypeTel, Placeholder: "(515) 555-0100"},
	}
}

func builtinSchemas() []*Schema {
	contact := &Schema{
		ID:             ContactFormID,
		Title:          "Contact us",
		Description:    "Questions about a policy or a claim? Send us a note and an agent will get back to you within one business day.",
		SubmitLabel:    "Send message",
		SuccessMessage: "Thank you for reaching out. An agent will contact you within one business day.",
		Fields: []Field{
			{Name: "name", Label: "Name", Type: TypeText, Required: true, MinLength: 2, MaxLength: 100},
			{Name: "email", Label: "Email", Type: TypeEmail, Required: true, MaxLength: 254, Placeholder: "you@example.com"},
			{Name: "phone", Label: "Phone", Type: TypeTel, Placeholder: "(515) 555-0100"},
			{Name: "preferred_contact", Label: "Preferred contact method", Type: TypeSelect, Options: []Option{
				{Value: "email", Label: "Email"},
				{Value: "phone", Label: "Phone"},
			}},
			{Name: "subject", Label: "Subject", Type: TypeSelect, Required: true, Options: []Option{
				{Value: "general", Label: "General question"},
				{Value: "policy", Label: "Existing policy"},
				{Value: "claim", Label: "Claim help"},
				{Value: "quote", Label: "New quote"},
			}},
			{Name: "message", Label: "Message", Type: TypeTextarea, Required: true, MinLength: 10, MaxLength: 5000},
		},
		Rules: []Rule{
			{
				Expr:    `preferred_contact != "phone" || phone != ""`,
				Message: "Please provide a phone number if you prefer to be called",
				Field:   "phone",
			},
		},
	}

	auto := quoteSchema("auto", "Auto insurance quote",
		"Tell us about your vehicle and drivers and we will shop carriers for you.",
		[]Field{
			{Name: "vehicle_year", Label: "Vehicle year", Type: TypeNumber, Required: true},
			{Name: "vehicle_make", Label: "Make", Type: TypeText, Required: true, MaxLength: 50},
			{Name: "vehicle_model", Label: "Model", Type: TypeText, Required: true, MaxLength: 50},
			{Name: "drivers", Label: "Number of drivers", Type: TypeNumber, Required: true},
			{Name: "coverage", Label: "Coverage", Type: TypeSelect, Required: true, Options: []Option{
				{Value: "liability", Label: "Liability only"},
				{Value: "full", Label: "Full coverage"},
			}},
			{Name: "current_insurer", Label: "Current insurer", Type: TypeText, MaxLength: 100},
		},
		[]Rule{
			{
				Expr:    `num(vehicle_year) >= 1950 && num(vehicle_year) <= current_year + 1`,
				Message: "Please enter a valid vehicle year",
				Field:   "vehicle_year",
			},
			{
				Expr:    `num(drivers) >= 1 && num(drivers) <= 10`,
				Message: "Number of drivers must be between 1 and 10",
				Field:   "drivers",
			},
		},
	)

	home := quoteSchema("home", "Home insurance quote",
		"Homeowners, condo and renters coverage from carriers we trust.",
		[]Field{
			{Name: "property_type", Label: "Property type", Type: TypeSelect, Required: true, Options: []Option{
				{Value: "house", Label: "Single-family house"},
				{Value: "condo", Label: "Condo"},
				{Value: "townhouse", Label: "Townhouse"},
				{Value: "rental", Label: "Renting"},
			}},
			{Name: "address", Label: "Property address", Type: TypeText, Required: true, MinLength: 5, MaxLength: 200},
			{Name: "year_built", Label: "Year built", Type: TypeNumber},
			{Name: "square_feet", Label: "Square feet", Type: TypeNumber},
		},
		[]Rule{
			{
				Expr:    `year_built == "" || (num(year_built) >= 1800 && num(year_built) <= current_year)`,
				Message: "Please enter a valid year built",
				Field:   "year_built",
			},
			{
				Expr:    `square_feet == "" || num(square_feet) >= 100`,
				Message: "Square feet must be at least 100",
				Field:   "square_feet",
			},
		},
	)

	life := quoteSchema("life", "Life insurance quote",
		"Term and whole life policies sized to protect the people who depend on you.",
		[]Field{
			{Name: "date_of_birth", Label: "Date of birth", Type: TypeDate, Required: true},
			{Name: "coverage_amount", Label: "Coverage amount ($)", Type: TypeNumber, Required: true},
			{Name: "term", Label: "Policy type", Type: TypeSelect, Required: true, Options: []Option{
				{Value: "10", Label: "10-year term"},
				{Value: "20", Label: "20-year term"},
				{Value: "30", Label: "30-year term"},
				{Value: "whole", Label: "Whole life"},
			}},
			{Name: "tobacco", Label: "Tobacco use in the last 12 months", Type: TypeSelect, Required: true, Options: []Option{
				{Value: "no", Label: "No"},
				{Value: "yes", Label: "Yes"},
			}},
		},
		[]Rule{
			{
				Expr:    `age(date_of_birth) >= 18 && age(date_of_birth) <= 85`,
				Message: "Applicants must be between 18 and 85 years old",
				Field:   "date_of_birth",
			},
			{
				Expr:    `num(coverage_amount) >= 10000`,
				Message: "Coverage amount must be at least $10,000",
				Field:   "coverage_amount",
			},
		},
	)

	business := quoteSchema("business", "Business insurance quote",
		"General liability, property, workers' compensation and more for your business.",
		[]Field{
			{Name: "business_name", Label: "Business name", Type: TypeText, Required: true, MinLength: 2, MaxLength: 150},
			{Name: "industry", Label: "Industry", Type: TypeSelect, Required: true, Options: []Option{
				{Value: "retail", Label: "Retail"},
				{Value: "construction", Label: "Construction"},
				{Value: "professional", Label: "Professional services"},
				{Value: "hospitality", Label: "Restaurant / hospitality"},
				{Value: "agriculture", Label: "Agriculture"},
				{Value: "other", Label: "Other"},
			}},
			{Name: "employees", Label: "Number of employees", Type: TypeNumber, Required: true},
			{Name: "annual_revenue", Label: "Annual revenue ($)", Type: TypeNumber},
			{Name: "coverage_needs", Label: "Coverage needs", Type: TypeTextarea, MaxLength: 2000},
		},
		[]Rule{
			{
				Expr:    `num(employees) >= 0 && num(employees) <= 100000`,
				Message: "Please enter a valid number of employees",
				Field:   "employees",
			},
		},
	)

	return []*Schema{contact, auto, home, life, business}
}

func quoteSchema(line, title, description string, fields []Field, rules []Rule) *Schema {
	all := contactFields()
	all = append(all, Field{
		Name: "zip", Label: "ZIP code", Type: TypeText, Required: true,
		Pattern: zipPattern, PatternHint: "Please enter a valid ZIP code", MaxLength: 10,
	})
	all = append(all, fields...)

	return &Schema{
		ID:             QuoteFormID(line),
		Title:          title,
		Description:    description,
		SubmitLabel:    "Request my quote",
		SuccessMessage: "Thanks! An agent is reviewing your " + line + " quote request and will be in touch shortly.",
		Line:           line,
		Fields:         all,
		Rules:          rules,
	}
}
