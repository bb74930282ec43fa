package nv

import (
	"context"
	"encoding/hex"
	"fmt"
)

// ImeiItem is the NV item holding the IMEI.
const ImeiItem uint16 = 550

const imeiDigits = 15

// ConvertIMEI packs a 15 digit IMEI into the NV_UE_IMEI_I layout: a length
// byte of 8, then the digits prefixed by the 0xA marker nibble with each
// nibble pair swapped.
//
//	"490154203237518" -> 08 4A 09 51 24 30 32 57 81
func ConvertIMEI(imei string) ([]byte, error) {
	if len(imei) != imeiDigits {
		return nil, fmt.Errorf("invalid IMEI %q: need %d digits, got %d", imei, imeiDigits, len(imei))
	}
	for _, r := range imei {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid IMEI %q: non-digit %q", imei, r)
		}
	}

	nibbles := "A" + imei
	swapped := make([]byte, 0, len(nibbles))
	for i := 0; i < len(nibbles); i += 2 {
		swapped = append(swapped, nibbles[i+1], nibbles[i])
	}
	return hex.DecodeString("08" + string(swapped))
}

// WriteIMEI writes each IMEI in order. The first goes to the flat item,
// the rest to sub-item indices 1, 2, ... A failed flat write is reported
// as is; index 0 is never written through the subsystem.
func (s *Store) WriteIMEI(ctx context.Context, imeis []string) error {
	if len(imeis) == 0 {
		return fmt.Errorf("no IMEI given")
	}

	packed := make([][]byte, len(imeis))
	for i, imei := range imeis {
		data, err := ConvertIMEI(imei)
		if err != nil {
			return err
		}
		packed[i] = data
	}

	for i, data := range packed {
		var err error
		if i == 0 {
			err = s.Write(ctx, ImeiItem, data)
		} else {
			err = s.WriteSub(ctx, ImeiItem, uint16(i), data)
		}
		if err != nil {
			return fmt.Errorf("IMEI %d: %w", i+1, err)
		}
	}
	return nil
}
