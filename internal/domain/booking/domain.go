package booking

import (
	"strings"
	"time"
)

// Domain は予約対象の種別
type Domain string

const (
	DomainCalendar Domain = "calendar"
	DomainTheater  Domain = "theater"
	DomainBus      Domain = "bus"
	DomainFlight   Domain = "flight"
	DomainTrain    Domain = "train"
)

// DefaultHoldTTL は全ドメイン共通の保留期間
const DefaultHoldTTL = 10 * time.Minute

// Policy はドメインごとの価格と予約ルール
type Policy struct {
	UnitPrice  int  // 1ユニットあたりの価格
	MaxUnits   int  // 1予約あたりの上限。0は無制限
	Releasable bool // 確定後のキャンセルでユニットを戻せるか
	UnitNoun   string
}

var policies = map[Domain]Policy{
	DomainCalendar: {UnitPrice: 0, MaxUnits: 1, Releasable: true, UnitNoun: "slots"},
	DomainTheater:  {UnitPrice: 15, UnitNoun: "seats"},
	DomainBus:      {UnitPrice: 45, UnitNoun: "seats"},
	DomainFlight:   {UnitPrice: 240, UnitNoun: "seats"},
	DomainTrain:    {UnitPrice: 85, UnitNoun: "seats"},
}

// AllDomains は対応ドメインを固定順で返す
func AllDomains() []Domain {
	return []Domain{DomainCalendar, DomainTheater, DomainBus, DomainFlight, DomainTrain}
}

// ParseDomain は文字列からドメインを得る
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := policies[d]; !ok {
		return "", ErrInvalidDomain
	}
	return d, nil
}

func (d Domain) IsValid() bool {
	_, ok := policies[d]
	return ok
}

func (d Domain) Policy() Policy {
	return policies[d]
}

// Price は n ユニット分の合計金額を返す
func (d Domain) Price(n int) int {
	return d.Policy().UnitPrice * n
}

func (d Domain) String() string {
	return string(d)
}
