package form

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-form/internal/client"
	"github.com/kjstillabower/weather-form/internal/loading"
	"github.com/kjstillabower/weather-form/internal/models"
	"github.com/kjstillabower/weather-form/internal/observability"
)

// User-facing error messages. The underlying cause is logged, never shown.
const (
	MsgCountriesLoadFailure = "Failed to load countries"
	MsgCitiesLoadFailure    = "Failed to load cities"
	MsgWeatherLookupFailure = "Weather not found"
)

// ErrorKind labels form errors in metrics.
type ErrorKind string

const (
	ErrorKindCountriesLoad ErrorKind = "countries_load"
	ErrorKindCitiesLoad    ErrorKind = "cities_load"
	ErrorKindWeatherLookup ErrorKind = "weather_lookup"
)

var (
	// ErrUnknownCountry is returned when a selection is not among the fetched countries.
	ErrUnknownCountry = errors.New("unknown country")
	// ErrUnknownCity is returned when a selection is not among the fetched cities.
	ErrUnknownCity = errors.New("unknown city")
)

// Form holds the UI state of one country -> city -> weather form.
//
// Operations are serialized by opMu, so one Form never has two backend requests in
// flight. Field reads and writes take stateMu only, which lets a render or the loading
// subscription run while an operation waits on the backend.
type Form struct {
	client  client.BackendClient
	loading *loading.Broadcaster
	logger  *zap.Logger

	opMu sync.Mutex

	stateMu     sync.RWMutex
	countries   []models.Country
	cities      []models.City
	country     string
	city        string
	weather     *models.Weather
	isLoading   bool
	errMsg      string
	unsubscribe func()
	closed      bool
}

// New returns a Form that fetches through c and observes b. b should be the broadcaster
// c reports to.
func New(c client.BackendClient, b *loading.Broadcaster, logger *zap.Logger) *Form {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Form{client: c, loading: b, logger: logger}
}

// Broadcaster returns the loading broadcaster this form observes.
func (f *Form) Broadcaster() *loading.Broadcaster {
	return f.loading
}

// Initialize subscribes to loading and fetches the country list. Calling it again only
// refetches countries.
func (f *Form) Initialize(ctx context.Context) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.stateMu.Lock()
	if f.closed {
		f.stateMu.Unlock()
		return
	}
	if f.unsubscribe == nil && f.loading != nil {
		f.unsubscribe = f.loading.Subscribe(f.setLoading)
	}
	f.stateMu.Unlock()

	countries, err := f.client.FetchCountries(ctx)
	if err != nil {
		f.fail(ctx, ErrorKindCountriesLoad, MsgCountriesLoadFailure, err)
		return
	}

	f.stateMu.Lock()
	f.countries = countries
	f.stateMu.Unlock()
}

// SelectCountry changes the selected country. It clears weather, the selected city and
// the error, then fetches the city list. An empty code also clears the city list and
// fetches nothing. A failed fetch keeps the previous city list. Reselecting the current
// non-empty country does nothing.
func (f *Form) SelectCountry(ctx context.Context, code string) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.stateMu.Lock()
	if code != "" && code == f.country {
		f.stateMu.Unlock()
		return nil
	}
	if code != "" && !hasCountry(f.countries, code) {
		f.stateMu.Unlock()
		return ErrUnknownCountry
	}
	f.country = code
	f.weather = nil
	f.city = ""
	f.errMsg = ""
	if code == "" {
		f.cities = nil
		f.stateMu.Unlock()
		return nil
	}
	f.stateMu.Unlock()

	cities, err := f.client.FetchCities(ctx, code)
	if err != nil {
		f.fail(ctx, ErrorKindCitiesLoad, MsgCitiesLoadFailure, err)
		return nil
	}

	f.stateMu.Lock()
	f.cities = cities
	f.stateMu.Unlock()
	return nil
}

// SelectCity changes the selected city. Empty clears the selection.
func (f *Form) SelectCity(name string) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	if name != "" && !hasCity(f.cities, name) {
		return ErrUnknownCity
	}
	f.city = name
	return nil
}

// Submit fetches weather for the selected city. It does nothing when no city is selected.
func (f *Form) Submit(ctx context.Context) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.stateMu.Lock()
	city := f.city
	if city == "" {
		f.stateMu.Unlock()
		return
	}
	f.errMsg = ""
	f.weather = nil
	f.stateMu.Unlock()

	observability.WeatherLookupsTotal.Inc()
	wx, err := f.client.FetchWeather(ctx, city)
	if err != nil {
		f.fail(ctx, ErrorKindWeatherLookup, MsgWeatherLookupFailure, err)
		return
	}

	f.stateMu.Lock()
	f.weather = &wx
	f.stateMu.Unlock()
}

// CanSubmit reports whether a city is selected.
func (f *Form) CanSubmit() bool {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.city != ""
}

// Close unsubscribes from loading. Safe to call more than once.
func (f *Form) Close() {
	f.stateMu.Lock()
	off := f.unsubscribe
	f.unsubscribe = nil
	f.closed = true
	f.stateMu.Unlock()

	if off != nil {
		off()
	}
}

func (f *Form) setLoading(v bool) {
	f.stateMu.Lock()
	f.isLoading = v
	f.stateMu.Unlock()
}

func (f *Form) fail(ctx context.Context, kind ErrorKind, msg string, err error) {
	observability.RecordFormError(string(kind))
	observability.LoggerFromContext(ctx, f.logger).Debug("form request failed",
		zap.String("kind", string(kind)),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))

	f.stateMu.Lock()
	f.errMsg = msg
	f.stateMu.Unlock()
}

func hasCountry(countries []models.Country, code string) bool {
	for _, c := range countries {
		if c.Code == code {
			return true
		}
	}
	return false
}

func hasCity(cities []models.City, name string) bool {
	for _, c := range cities {
		if c.Name == name {
			return true
		}
	}
	return false
}
