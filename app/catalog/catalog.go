// Package catalog loads the YAML catalog of lookup tables and seed records (failure modes, failure causes,
// users and assets) and applies it to the store. Applying is idempotent: records are matched by code,
// email or tag and updated in place, so the same file can be applied on every start.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/persistence"
)

//go:generate go run ./internal/schema ../../catalog.schema.json

// Catalog is the content of the catalog file
type Catalog struct {
	FailureModes  []FailureMode  `yaml:"failure_modes" json:"failure_modes,omitempty" jsonschema:"description=how equipment fails"`
	FailureCauses []FailureCause `yaml:"failure_causes" json:"failure_causes,omitempty" jsonschema:"description=why equipment fails"`
	Users         []User         `yaml:"users" json:"users,omitempty" jsonschema:"description=people reporting and doing the work"`
	Assets        []Asset        `yaml:"assets" json:"assets,omitempty" jsonschema:"description=maintained equipment"`
}

// FailureMode entry, code is the key
type FailureMode struct {
	Code        string `yaml:"code" json:"code" jsonschema:"required,minLength=1,description=unique code"`
	Name        string `yaml:"name" json:"name" jsonschema:"required,minLength=1"`
	Category    string `yaml:"category" json:"category,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// FailureCause entry, code is the key
type FailureCause struct {
	Code        string `yaml:"code" json:"code" jsonschema:"required,minLength=1,description=unique code"`
	Name        string `yaml:"name" json:"name" jsonschema:"required,minLength=1"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// User entry, email is the key
type User struct {
	Name     string `yaml:"name" json:"name" jsonschema:"required,minLength=1"`
	Email    string `yaml:"email" json:"email" jsonschema:"required,format=email,description=unique email"`
	Role     string `yaml:"role" json:"role" jsonschema:"required,enum=technician,enum=engineer,enum=supervisor,enum=viewer"`
	Inactive bool   `yaml:"inactive" json:"inactive,omitempty" jsonschema:"description=user can't be assigned new work"`
}

// Asset entry, tag is the key
type Asset struct {
	Tag         string `yaml:"tag" json:"tag" jsonschema:"required,minLength=1,description=unique asset tag"`
	Name        string `yaml:"name" json:"name" jsonschema:"required,minLength=1"`
	Category    string `yaml:"category" json:"category,omitempty"`
	Location    string `yaml:"location" json:"location,omitempty"`
	Criticality string `yaml:"criticality" json:"criticality,omitempty" jsonschema:"enum=low,enum=medium,enum=high,default=medium"`
	PMSchedule  string `yaml:"pm_schedule" json:"pm_schedule,omitempty" jsonschema:"description=preventive maintenance cron schedule,example=@every 720h"`
	InService   string `yaml:"in_service" json:"in_service,omitempty" jsonschema:"format=date,description=in service date YYYY-MM-DD"`
}

// Load reads and validates catalog file
func Load(path string, parser cron.Parser) (*Catalog, error) {
	fh, err := os.Open(path) //nolint:gosec // path comes from cli options
	if err != nil {
		return nil, fmt.Errorf("can't open catalog %s: %w", path, err)
	}
	defer fh.Close()
	res, err := Parse(fh, parser)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return res, nil
}

// Parse decodes catalog from r rejecting unknown fields, then validates it
func Parse(r io.Reader, parser cron.Parser) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	res := &Catalog{}
	if err := dec.Decode(res); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't decode yaml: %w", err)
	}
	if err := res.Validate(parser); err != nil {
		return nil, err
	}
	return res, nil
}

// Validate checks required fields, enums, schedules, dates and duplicate keys. All problems are reported.
func (c *Catalog) Validate(parser cron.Parser) error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }
	seen := map[string]bool{}
	dup := func(kind, key string) bool {
		k := kind + ":" + strings.ToLower(key)
		if seen[k] {
			return true
		}
		seen[k] = true
		return false
	}

	for i, m := range c.FailureModes {
		if strings.TrimSpace(m.Code) == "" || strings.TrimSpace(m.Name) == "" {
			fail("failure mode %d: code and name are required", i+1)
			continue
		}
		if dup("mode", m.Code) {
			fail("failure mode %d: duplicate code %q", i+1, m.Code)
		}
	}
	for i, fc := range c.FailureCauses {
		if strings.TrimSpace(fc.Code) == "" || strings.TrimSpace(fc.Name) == "" {
			fail("failure cause %d: code and name are required", i+1)
			continue
		}
		if dup("cause", fc.Code) {
			fail("failure cause %d: duplicate code %q", i+1, fc.Code)
		}
	}
	for i, u := range c.Users {
		if strings.TrimSpace(u.Name) == "" {
			fail("user %d: name is required", i+1)
		}
		if !strings.Contains(u.Email, "@") {
			fail("user %d: valid email is required", i+1)
		} else if dup("user", u.Email) {
			fail("user %d: duplicate email %q", i+1, u.Email)
		}
		if _, err := enums.ParseRole(u.Role); err != nil {
			fail("user %d: %w", i+1, err)
		}
	}
	for i, a := range c.Assets {
		if strings.TrimSpace(a.Tag) == "" || strings.TrimSpace(a.Name) == "" {
			fail("asset %d: tag and name are required", i+1)
		} else if dup("asset", a.Tag) {
			fail("asset %d: duplicate tag %q", i+1, a.Tag)
		}
		if a.Criticality != "" {
			if _, err := enums.ParseCriticality(a.Criticality); err != nil {
				fail("asset %d: %w", i+1, err)
			}
		}
		if a.PMSchedule != "" {
			if _, err := parser.Parse(a.PMSchedule); err != nil {
				fail("asset %d: invalid pm_schedule %q: %w", i+1, a.PMSchedule, err)
			}
		}
		if a.InService != "" {
			if _, err := time.Parse(time.DateOnly, a.InService); err != nil {
				fail("asset %d: invalid in_service date %q", i+1, a.InService)
			}
		}
	}
	return errors.Join(errs...)
}

// Store is what applying catalog needs from the storage
type Store interface {
	UpsertFailureMode(ctx context.Context, m persistence.FailureMode) error
	UpsertFailureCause(ctx context.Context, c persistence.FailureCause) error
	UpsertUser(ctx context.Context, u persistence.User) (string, error)
	UpsertAsset(ctx context.Context, a persistence.Asset) (string, error)
}

// Result is number of applied records
type Result struct {
	FailureModes  int
	FailureCauses int
	Users         int
	Assets        int
}

func (r Result) String() string {
	return fmt.Sprintf("failure modes: %d, failure causes: %d, users: %d, assets: %d",
		r.FailureModes, r.FailureCauses, r.Users, r.Assets)
}

// Apply upserts every catalog record, stops on the first error.
// In-service dates are midnight in loc, the time zone of the dashboard, local if nil.
func (c *Catalog) Apply(ctx context.Context, store Store, loc *time.Location) (res Result, err error) {
	if loc == nil {
		loc = time.Local
	}
	for _, m := range c.FailureModes {
		if err := store.UpsertFailureMode(ctx, persistence.FailureMode{Code: strings.TrimSpace(m.Code),
			Name: m.Name, Category: m.Category, Description: m.Description}); err != nil {
			return res, err
		}
		res.FailureModes++
	}
	for _, fc := range c.FailureCauses {
		if err := store.UpsertFailureCause(ctx, persistence.FailureCause{Code: strings.TrimSpace(fc.Code),
			Name: fc.Name, Description: fc.Description}); err != nil {
			return res, err
		}
		res.FailureCauses++
	}
	for _, u := range c.Users {
		role, _ := enums.ParseRole(u.Role) // validated
		if _, err := store.UpsertUser(ctx, persistence.User{ID: uuid.NewString(), Name: strings.TrimSpace(u.Name),
			Email: strings.ToLower(strings.TrimSpace(u.Email)), Role: role, Active: !u.Inactive}); err != nil {
			return res, err
		}
		res.Users++
	}
	for _, a := range c.Assets {
		crit := enums.CriticalityMedium
		if a.Criticality != "" {
			crit, _ = enums.ParseCriticality(a.Criticality)
		}
		var inService time.Time
		if a.InService != "" {
			inService, _ = time.ParseInLocation(time.DateOnly, a.InService, loc) // validated
		}
		if _, err := store.UpsertAsset(ctx, persistence.Asset{ID: uuid.NewString(), Tag: strings.TrimSpace(a.Tag),
			Name: a.Name, Category: a.Category, Location: a.Location, Criticality: crit, PMSchedule: a.PMSchedule,
			InServiceAt: inService}); err != nil {
			return res, err
		}
		res.Assets++
	}
	log.Printf("[INFO] catalog applied, %s", res)
	return res, nil
}

// GenerateSchema generates JSON schema of the catalog file
func GenerateSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	res := r.Reflect(&Catalog{})
	res.Title = "FRACAS catalog"
	res.Description = "Failure modes, failure causes, users and assets loaded into the FRACAS database"
	return res
}
