package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

type Unit string

const (
	UnitBTC Unit = "btc"
	UnitBit Unit = "bit"
)

func (u Unit) String() string { return string(u) }

func (u Unit) Valid() bool { return u == UnitBTC || u == UnitBit }

// ParseUnit normalizes input; empty => btc.
// Returns (value, true) if valid; otherwise (btc, false).
func ParseUnit(s string) (Unit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "btc":
		return UnitBTC, true
	case "bit", "bits":
		return UnitBit, true
	default:
		return UnitBTC, false
	}
}

// KindList is stored as a comma separated column.
type KindList []Kind

func (l KindList) Has(k Kind) bool {
	for _, x := range l {
		if x == k {
			return true
		}
	}
	return false
}

func (l KindList) Value() (driver.Value, error) {
	parts := make([]string, 0, len(l))
	for _, k := range l {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, ","), nil
}

func (l *KindList) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("kind list: unsupported type %T", src)
	}
	out := KindList{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, Kind(p))
		}
	}
	*l = out
	return nil
}

// CopayerPreference holds a copayer's notification settings. The pipeline never writes it.
type CopayerPreference struct {
	CopayerID string   `db:"copayer_id" json:"copayerId"`
	WalletID  string   `db:"wallet_id"  json:"walletId"`
	Email     string   `db:"email"      json:"email,omitempty"`
	Language  string   `db:"language"   json:"language"`
	Unit      Unit     `db:"unit"       json:"unit"`
	OptOut    KindList `db:"opt_out"    json:"optOut,omitempty"`
}
