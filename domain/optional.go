package domain

import (
	"bytes"
	"time"

	"github.com/bytedance/sonic"
)

// OptionalTime distinguishes an absent field from an explicit null.
type OptionalTime struct {
	Set  bool
	Time *time.Time
}

func (o *OptionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Time = nil
		return nil
	}
	var t time.Time
	if err := sonic.Unmarshal(data, &t); err != nil {
		return err
	}
	o.Time = &t
	return nil
}
