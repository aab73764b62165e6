package models

// Category is a display-only label for ledger entries and rules
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Person is someone money is owed to or received from
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
