package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// optString is a string flag that remembers whether it was given, so an
// explicit empty value can clear a field.
type optString struct {
	set   bool
	value string
}

func (o *optString) String() string { return o.value }

func (o *optString) Set(v string) error {
	o.set = true
	o.value = v
	return nil
}

// ptr returns a pointer to the value when set, nil otherwise.
func (o *optString) ptr() *string {
	if !o.set {
		return nil
	}
	v := strings.TrimSpace(o.value)
	return &v
}

// optFloat is a float flag that is nil unless given.
type optFloat struct {
	value *float64
}

func (o *optFloat) String() string {
	if o.value == nil {
		return ""
	}
	return strconv.FormatFloat(*o.value, 'f', -1, 64)
}

func (o *optFloat) Set(v string) error {
	f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(v), ",", ".", 1), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", v)
	}
	if f < 0 {
		return fmt.Errorf("must not be negative: %s", v)
	}
	o.value = &f
	return nil
}

// optDate is a YYYY-MM-DD flag that is nil unless given.
type optDate struct {
	value *time.Time
}

func (o *optDate) String() string {
	if o.value == nil {
		return ""
	}
	return o.value.Format(time.DateOnly)
}

func (o *optDate) Set(v string) error {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("expected YYYY-MM-DD: %s", v)
	}
	o.value = &t
	return nil
}
