package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	minShutdownTimeout = time.Second
	secondsPerHour     = 3600
	maxOffsetHours     = 14
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report errors by TOML key rather than Go field name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating config: %w", err)
		}

		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStore(&cfg.Store)...)

	if _, err := parseDuration(cfg.Network.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.request_timeout: %w", err))
	}

	if _, err := ParseLocation(cfg.DisplayTimezone); err != nil {
		errs = append(errs, fmt.Errorf("display_timezone: %w", err))
	}

	return errors.Join(errs...)
}

// fieldError renders a validator failure as "section.key: message".
func fieldError(fe validator.FieldError) error {
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s: must not be empty", key)
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "min", "max":
		return fmt.Errorf("%s: must be %s %s, got %v", key, boundWord(fe.Tag()), fe.Param(), fe.Value())
	case "url":
		return fmt.Errorf("%s: must be an absolute URL, got %q", key, fe.Value())
	case "hostname_port":
		return fmt.Errorf("%s: must be host:port, got %q", key, fe.Value())
	default:
		return fmt.Errorf("%s: failed %q check", key, fe.Tag())
	}
}

func boundWord(tag string) string {
	if tag == "min" {
		return "at least"
	}

	return "at most"
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.Mode == ModeSingle && s.Drive == "" {
		errs = append(errs, errors.New("server.drive: required when server.mode is \"single\""))
	}

	d, err := parseDuration(s.ShutdownTimeout)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: %w", err))
	case d < minShutdownTimeout:
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: must be at least %s, got %s", minShutdownTimeout, d))
	}

	return errs
}

func validateStore(s *StoreConfig) []error {
	var errs []error

	if s.Backend == "postgres" {
		if s.DSN == "" {
			errs = append(errs, errors.New("store.dsn: required when store.backend is \"postgres\""))
		}

		if s.Table == "" {
			errs = append(errs, errors.New("store.table: must not be empty"))
		}
	}

	return errs
}

// parseDuration accepts Go duration strings and a bare "0".
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", s)
	}

	return d, nil
}

// RequestTimeout returns the outbound request timeout; zero means none.
// Call only on a validated Config.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := parseDuration(c.Network.RequestTimeout)
	return d
}

// ShutdownTimeout returns how long serve waits for in-flight requests.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// Location returns the display timezone, falling back to UTC+8.
func (c *Config) Location() *time.Location {
	loc, err := ParseLocation(c.DisplayTimezone)
	if err != nil {
		loc, _ = ParseLocation(defaultTimezone)
	}

	return loc
}

// ParseLocation accepts "UTC", a fixed offset like "UTC+8" or "UTC-3:30",
// or an IANA zone name. Empty means the default UTC+8.
func ParseLocation(s string) (*time.Location, error) {
	if s == "" {
		s = defaultTimezone
	}

	if rest, ok := strings.CutPrefix(s, "UTC"); ok && rest != "" {
		secs, err := parseOffset(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q: %w", s, err)
		}

		return time.FixedZone(s, secs), nil
	}

	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("unknown zone %q", s)
	}

	return loc, nil
}

// parseOffset parses "+8", "-3:30" into seconds east of UTC.
func parseOffset(s string) (int, error) {
	sign := 1

	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, errors.New("must start with + or -")
	}

	hh, mm, _ := strings.Cut(s[1:], ":")

	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > maxOffsetHours {
		return 0, fmt.Errorf("bad hours %q", hh)
	}

	minutes := 0
	if mm != "" {
		minutes, err = strconv.Atoi(mm)
		if err != nil || minutes < 0 || minutes >= 60 {
			return 0, fmt.Errorf("bad minutes %q", mm)
		}
	}

	return sign * (hours*secondsPerHour + minutes*60), nil
}
