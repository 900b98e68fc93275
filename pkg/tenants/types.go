package tenants

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/collection"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// TenantsCollection is the app database collection holding tenants
const TenantsCollection = "tenants"

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// SubscriptionStatus mirrors the billing provider subscription state
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = ""
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Billing is the billing state reported for a tenant. It is informational
// and does not gate requests.
type Billing struct {
	CustomerID       string             `bson:"customer_id,omitempty" json:"customer_id,omitempty" yaml:"customer_id,omitempty"`
	SubscriptionID   string             `bson:"subscription_id,omitempty" json:"subscription_id,omitempty" yaml:"subscription_id,omitempty"`
	Status           SubscriptionStatus `bson:"status,omitempty" json:"status,omitempty" yaml:"status,omitempty"`
	CurrentPeriodEnd *time.Time         `bson:"current_period_end,omitempty" json:"current_period_end,omitempty" yaml:"current_period_end,omitempty"`
	LastPaymentAt    *time.Time         `bson:"last_payment_at,omitempty" json:"last_payment_at,omitempty" yaml:"last_payment_at,omitempty"`
	PaymentFailed    bool               `bson:"payment_failed,omitempty" json:"payment_failed,omitempty" yaml:"payment_failed,omitempty"`
}

// Tenant is one customer configuration: its name and collection specs
type Tenant struct {
	ID          primitive.ObjectID       `bson:"_id,omitempty" json:"_id,omitempty" yaml:"-"`
	Name        string                   `bson:"name" json:"name" yaml:"name"`
	DisplayName string                   `bson:"display_name,omitempty" json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Collections []map[string]interface{} `bson:"collections" json:"collections" yaml:"collections"`
	Billing     Billing                  `bson:"billing,omitempty" json:"billing,omitempty" yaml:"billing,omitempty"`
	UpdatedAt   time.Time                `bson:"updated_at,omitempty" json:"updated_at,omitempty" yaml:"-"`
}

// Validate checks the tenant name
func (t Tenant) Validate() error {
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("invalid tenant name %q: use lower case letters, digits and dashes", t.Name)
	}
	return nil
}

// Specs decodes the collection specs
func (t Tenant) Specs() ([]collection.Spec, error) {
	specs := make([]collection.Spec, 0, len(t.Collections))
	for i, raw := range t.Collections {
		spec, err := collection.SpecFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: collection %d: %w", t.Name, i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Hash fingerprints the configuration that shapes the schema. Billing and
// timestamps are excluded so billing updates do not trigger rebuilds.
func (t Tenant) Hash() string {
	// goccy/go-json sorts map keys like encoding/json
	data, err := json.Marshal(schema.Normalize(toInterfaces(t.Collections)))
	if err != nil {
		data = []byte(fmt.Sprint(t.Collections))
	}
	sum := sha256.Sum256(append([]byte(t.Name+"\x00"), data...))
	return hex.EncodeToString(sum[:])
}

func toInterfaces(maps []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(maps))
	for i, m := range maps {
		out[i] = m
	}
	return out
}

// EventType classifies a tenant change
type EventType int

const (
	EventUpsert EventType = iota
	EventDelete
)

// Event is a tenant change observed by a Source
type Event struct {
	Type   EventType
	Tenant Tenant
}
