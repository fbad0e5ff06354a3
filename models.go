package main

// MeterType is a category of physical utility meter on the account.
type MeterType string

const (
	MeterTypeWater    MeterType = "water"
	MeterTypeElectric MeterType = "electric"
	MeterTypeGas      MeterType = "gas"
)

// MeterTypes is the fixed order meter types are queried in.
var MeterTypes = []MeterType{MeterTypeWater, MeterTypeElectric, MeterTypeGas}

// Credentials for the utility provider portal.
type Credentials struct {
	Username      string
	Password      string
	AccountNumber string
}

// MeterRecord is one physical meter discovered on the account.
type MeterRecord struct {
	MeterID      string    `json:"meterId"`
	MeterType    MeterType `json:"meterType"`
	MeterAddress string    `json:"meterAddress"`
}

// MeterList is the JSON document the run produces.
type MeterList struct {
	Meters []MeterRecord `json:"meters"`
}
