package models

// EmergencyContact is a person notified on dispatch
type EmergencyContact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// MedicalRecord is the device's singleton medical profile. Every field is optional.
type MedicalRecord struct {
	BloodType          string `json:"bloodType"`
	Allergies          string `json:"allergies"`
	Medications        string `json:"medications"`
	MedicalConditions  string `json:"medicalConditions"`
	EmergencyContact   string `json:"emergencyContact"`
	Insurance          string `json:"insurance"`
	Doctor             string `json:"doctor"`
	Height             string `json:"height"`
	Weight             string `json:"weight"`
	HasDiabetes        bool   `json:"hasDiabetes"`
	HasHypertension    bool   `json:"hasHypertension"`
	HasHeartConditions bool   `json:"hasHeartConditions"`
	OtherInfo          string `json:"otherInfo"`
}

// ProfileSnapshot is the read-only copy of contacts and medical record taken at alert time
type ProfileSnapshot struct {
	Contacts []EmergencyContact
	Medical  MedicalRecord
}

// DispatchContacts returns up to max contacts in insertion order.
func (s ProfileSnapshot) DispatchContacts(max int) []EmergencyContact {
	if max <= 0 || len(s.Contacts) <= max {
		return s.Contacts
	}
	return s.Contacts[:max]
}
