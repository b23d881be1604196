package profile

import "labtrail/pkg/changes"

// Builtin returns a registry preloaded with the lab's core record kinds.
func Builtin() *Registry {
	return NewRegistry(Patient(), Appointment(), Invoice(), Report())
}

func Patient() Profile {
	return Profile{
		EntityType: "Patient",
		DisplayFields: []string{
			"title", "firstName", "middleName", "lastName", "name",
			"gender", "dob", "dateOfBirth", "age",
			"phone", "mobile", "alternatePhone", "email",
			"address", "referredBy",
		},
		Labels: map[string]string{
			"dob":         "Date of Birth",
			"dateOfBirth": "Date of Birth",
			"mobile":      "Mobile Number",
			"phone":       "Phone Number",
			"referredBy":  "Referred By",
		},
	}
}

func Appointment() Profile {
	return Profile{
		EntityType: "Appointment",
		DisplayFields: []string{
			"appointmentDate", "appointmentTime", "slot",
			"status", "doctor", "department", "sampleCollection", "notes",
		},
		Labels: map[string]string{
			"appointmentDate": "Appointment Date",
			"appointmentTime": "Appointment Time",
		},
	}
}

// InvoiceTests is the billed-tests collection on an invoice.
var InvoiceTests = changes.CollectionSpec{
	Field:           "tests",
	Label:           "Tests",
	KeyFields:       []string{"testId", "id", "code", "name"},
	SignatureFields: []string{"qty", "quantity", "cost", "price", "discount"},
	NameFields:      []string{"name", "testName", "code", "id"},
}

func Invoice() Profile {
	return Profile{
		EntityType: "Invoice",
		DisplayFields: []string{
			"department", "appointmentDate",
			"payment.totalAmount", "payment.paidAmount", "payment.discount",
			"payment.dueAmount", "payment.mode",
		},
		Labels: map[string]string{
			"appointmentDate":     "Appointment Date",
			"payment.totalAmount": "Total Amount",
			"payment.paidAmount":  "Paid Amount",
			"payment.discount":    "Discount",
			"payment.dueAmount":   "Due Amount",
			"payment.mode":        "Payment Mode",
		},
		Collections: []changes.CollectionSpec{InvoiceTests},
	}
}

// ReportResults is the measured-parameter collection on a lab report.
var ReportResults = changes.CollectionSpec{
	Field:           "results",
	Label:           "Results",
	KeyFields:       []string{"parameterId", "parameter", "name"},
	SignatureFields: []string{"value", "unit", "flag", "referenceRange"},
	NameFields:      []string{"parameter", "name", "parameterId"},
}

func Report() Profile {
	return Profile{
		EntityType:    "Report",
		DisplayFields: []string{"status", "remarks", "verifiedBy", "reportDate"},
		Labels: map[string]string{
			"verifiedBy": "Verified By",
			"reportDate": "Report Date",
		},
		Collections: []changes.CollectionSpec{ReportResults},
	}
}
