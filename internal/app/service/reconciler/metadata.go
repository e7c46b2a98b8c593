package reconciler

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/fatflowers/coursepay/pkg/tool"
	"github.com/fatflowers/coursepay/pkg/types"

	"github.com/go-playground/validator/v10"
)

// Metadata keys written by the checkout flow.
const (
	MetaUserID          = "userId"
	MetaCourseID        = "courseId"
	MetaDaysOfAccess    = "daysOfAccess"
	MetaIsRenewal       = "isRenewal"
	MetaTier            = "tier"
	MetaBillingInterval = "billingInterval"
	MetaIsUpgrade       = "isUpgrade"
	MetaSource          = "source"
	MetaSubscription    = "subscription"
)

// purchaseMetadata is the decoded metadata bag of a checkout session or
// payment intent.
type purchaseMetadata struct {
	UserID          string
	CourseID        string
	DaysOfAccess    int
	IsRenewal       bool
	Tier            types.SubscriptionTier
	BillingInterval types.BillingInterval
	IsUpgrade       bool
	Source          string
}

func (m *purchaseMetadata) hasCourse() bool { return m.CourseID != "" }

// hasSubscriptionIntent reports whether a payment intent was made to start a
// subscription.
func hasSubscriptionIntent(raw map[string]string) bool {
	_, tier := raw[MetaTier]
	_, interval := raw[MetaBillingInterval]
	return tier || interval
}

func parseMetadata(raw map[string]string, defaultDays int) (*purchaseMetadata, error) {
	get := func(k string) string { return strings.TrimSpace(raw[k]) }

	m := &purchaseMetadata{
		UserID:          get(MetaUserID),
		CourseID:        get(MetaCourseID),
		DaysOfAccess:    defaultDays,
		IsRenewal:       tool.ParseFlag(get(MetaIsRenewal)),
		Tier:            types.SubscriptionTier(get(MetaTier)),
		BillingInterval: types.BillingInterval(get(MetaBillingInterval)),
		IsUpgrade:       tool.ParseFlag(get(MetaIsUpgrade)),
		Source:          get(MetaSource),
	}
	if m.Tier == "" {
		m.Tier = types.SubscriptionTierUnlimited
	}
	if s := get(MetaDaysOfAccess); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil || days <= 0 || days > types.MaxDaysOfAccess {
			return nil, &MetadataError{Invalid: []string{MetaDaysOfAccess}}
		}
		m.DaysOfAccess = days
	}
	return m, nil
}

// newValidator reports field errors under their metadata key names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("meta"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateAction checks a classified action and folds validator failures into
// a MetadataError.
func validateAction(v *validator.Validate, a Action) error {
	err := v.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	me := &MetadataError{}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			me.Missing = append(me.Missing, fe.Field())
		} else {
			me.Invalid = append(me.Invalid, fe.Field())
		}
	}
	if me.empty() {
		return nil
	}
	return me
}
