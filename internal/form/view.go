package form

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-form/internal/models"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Option is one entry of a select control.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Field is one cell of the weather panel.
type Field struct {
	Label string
	Value string
	Wide  bool
}

// View is a consistent snapshot of the form as it should be rendered.
type View struct {
	CountryOptions  []Option
	CountrySelected bool
	CityOptions     []Option
	CityDisabled    bool
	SubmitDisabled  bool
	Error           string
	Weather         []Field // nil when there is no weather to show
	Loading         bool
}

// View returns the current render state.
func (f *Form) View() View {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()

	v := View{
		CountrySelected: f.country != "",
		CityDisabled:    f.country == "",
		SubmitDisabled:  f.city == "",
		Error:           f.errMsg,
		Loading:         f.isLoading,
	}

	v.CountryOptions = make([]Option, 0, len(f.countries)+1)
	v.CountryOptions = append(v.CountryOptions, Option{Value: "", Label: "Select a country", Selected: f.country == ""})
	for _, c := range f.countries {
		v.CountryOptions = append(v.CountryOptions, Option{Value: c.Code, Label: c.Name, Selected: c.Code == f.country})
	}

	cityPlaceholder := "Select a country first"
	if f.country != "" {
		cityPlaceholder = "Select a city"
	}
	v.CityOptions = make([]Option, 0, len(f.cities)+1)
	v.CityOptions = append(v.CityOptions, Option{Value: "", Label: cityPlaceholder, Selected: f.city == ""})
	for _, c := range f.cities {
		v.CityOptions = append(v.CityOptions, Option{Value: c.Name, Label: c.Name, Selected: c.Name == f.city})
	}

	if f.weather != nil {
		v.Weather = WeatherFields(*f.weather)
	}
	return v
}

// Render writes the full HTML page for the current state.
func (f *Form) Render(w io.Writer) error {
	if err := pageTemplate.Execute(w, f.View()); err != nil {
		return fmt.Errorf("render form: %w", err)
	}
	return nil
}

// WeatherFields formats every field of wx for the weather panel, in display order.
func WeatherFields(wx models.Weather) []Field {
	return []Field{
		{Label: "Location", Value: wx.City + ", " + wx.Country},
		{Label: "Time (UTC)", Value: FormatTimestamp(wx.UTCTime)},
		{Label: "Wind", Value: FormatWind(wx.WindSpeed, wx.WindDirection)},
		{Label: "Visibility", Value: FormatNumber(wx.Visibility) + " m"},
		{Label: "Sky", Value: wx.Sky},
		{Label: "Temp", Value: FormatTemperature(wx.TemperatureC, wx.TemperatureF)},
		{Label: "Dew Point", Value: FormatNumber(wx.DewPoint)},
		{Label: "Humidity", Value: FormatNumber(wx.Humidity) + "%"},
		{Label: "Pressure", Value: FormatNumber(wx.Pressure) + " hPa", Wide: true},
	}
}

// FormatNumber prints v in its shortest form: 3, 10.5, 1013. Magnitudes below 1e-6 or
// from 1e21 up switch to exponent form without zero padding (1e-7, 1e+21), matching how
// browsers print numbers.
func FormatNumber(v float64) string {
	abs := math.Abs(v)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) || math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	out := strconv.FormatFloat(v, 'e', -1, 64)
	mant, exp, _ := strings.Cut(out, "e")
	sign := exp[:1]
	exp = strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + exp
}

// FormatUTC prints t as an RFC 1123 UTC string, e.g. "Mon, 01 Jan 2024 00:00:00 GMT".
func FormatUTC(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// FormatTimestamp prints a parsed timestamp with FormatUTC and anything else as received.
func FormatTimestamp(ts models.Timestamp) string {
	if ts.Valid() {
		return FormatUTC(ts.Time)
	}
	return ts.Raw
}

// FormatWind prints "3 m/s @ 180°".
func FormatWind(speed, direction float64) string {
	return FormatNumber(speed) + " m/s @ " + FormatNumber(direction) + "°"
}

// FormatTemperature prints "10 °C (50 °F)".
func FormatTemperature(celsius, fahrenheit float64) string {
	return FormatNumber(celsius) + " °C (" + FormatNumber(fahrenheit) + " °F)"
}
