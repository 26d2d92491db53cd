package models

// Country is one entry of the country selector.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// City is one entry of the city selector. CountryCode refers back to the Country it was listed under.
type City struct {
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
}

// Weather is a point-in-time snapshot of conditions for one city as returned by the backend.
type Weather struct {
	City          string    `json:"city"`
	Country       string    `json:"country"`
	UTCTime       Timestamp `json:"utcTime"` // ISO-8601; unparseable values keep Raw
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"` // degrees
	Visibility    float64   `json:"visibility"`    // meters
	Sky           string    `json:"sky"`
	TemperatureF  float64   `json:"temperatureF"`
	TemperatureC  float64   `json:"temperatureC"`
	DewPoint      float64   `json:"dewPoint"`
	Humidity      float64   `json:"humidity"` // percent
	Pressure      float64   `json:"pressure"` // hPa
}
