package dispenser

import "fmt"

type HardwareAddress struct {
	Crate   int `db:"crate"`
	Slot    int `db:"slot"`
	Channel int `db:"channel"`
}

// TranslationTable maps a sensitive element identity to its electronics address.
type TranslationTable struct {
	entries map[string]HardwareAddress
}

func NewTranslationTable() *TranslationTable {
	return &TranslationTable{entries: make(map[string]HardwareAddress)}
}

func (t *TranslationTable) Add(ids []int, address HardwareAddress) {
	t.entries[TTKey(ids)] = address
}

func (t *TranslationTable) AddKey(key string, address HardwareAddress) {
	t.entries[key] = address
}

func (t *TranslationTable) Electronics(ids []int) (HardwareAddress, error) {
	key := TTKey(ids)
	address, ok := t.entries[key]
	if !ok {
		return HardwareAddress{}, &ErrIdentityNotFoundInTT{Key: key}
	}
	return address, nil
}

func (t *TranslationTable) Len() int {
	return len(t.entries)
}

// ChargeAndTimeAtHardware adds the streaming readout observables of a hit to
// data using the translation table.
func ChargeAndTimeAtHardware(tt *TranslationTable, detector string, time int, charge int, hit *Hit, data *DigitizedData) error {
	if tt == nil {
		return &ErrTTNotFound{Detector: detector}
	}
	address, err := tt.Electronics(hit.TTID())
	if err != nil {
		return fmt.Errorf("%s: %w", detector, err)
	}
	data.IncludeInt(CrateID, address.Crate)
	data.IncludeInt(SlotID, address.Slot)
	data.IncludeInt(ChannelID, address.Channel)
	data.IncludeInt(TimeAtElectronics, time)
	data.IncludeInt(ChargeAtElectronics, charge)
	return nil
}
