package limits

import (
	"errors"
	"testing"
)

// TestMTUFromPaddingRoundTrip verifies that padding sized for an MTU yields
// the same MTU back.
func TestMTUFromPaddingRoundTrip(t *testing.T) {
	for _, mtu := range []int{MinMTUSize, 576, 1200, 1400, MaxMTUSize} {
		if got := MTUFromPadding(PaddingForMTU(mtu)); got != mtu {
			t.Errorf("MTUFromPadding(PaddingForMTU(%d)) = %d", mtu, got)
		}
	}
}

// TestMTUFromPaddingClamps tests the bounds applied to derived MTUs
func TestMTUFromPaddingClamps(t *testing.T) {
	if got := MTUFromPadding(0); got != MinMTUSize {
		t.Errorf("MTUFromPadding(0) = %d, want %d", got, MinMTUSize)
	}
	if got := MTUFromPadding(1354); got != 1400 {
		t.Errorf("MTUFromPadding(1354) = %d, want 1400", got)
	}
	if got := MTUFromPadding(4000); got != MaxMTUSize {
		t.Errorf("MTUFromPadding(4000) = %d, want %d", got, MaxMTUSize)
	}
}

// TestValidateMTU tests the MTU range check
func TestValidateMTU(t *testing.T) {
	tests := []struct {
		name    string
		mtu     int
		wantErr error
	}{
		{name: "minimum", mtu: MinMTUSize, wantErr: nil},
		{name: "maximum", mtu: MaxMTUSize, wantErr: nil},
		{name: "below minimum", mtu: MinMTUSize - 1, wantErr: ErrInvalidMTU},
		{name: "above maximum", mtu: MaxMTUSize + 1, wantErr: ErrInvalidMTU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMTU(tt.mtu)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMTU(%d) error = %v, want %v", tt.mtu, err, tt.wantErr)
			}
		})
	}
}

// TestValidateDatagram tests the datagram validation function
func TestValidateDatagram(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "nil datagram", data: nil, wantErr: ErrMessageEmpty},
		{name: "empty datagram", data: []byte{}, wantErr: ErrMessageEmpty},
		{name: "single byte", data: []byte{0x00}, wantErr: nil},
		{name: "max-size datagram", data: make([]byte, MaxDatagramSize), wantErr: nil},
		{name: "datagram too large", data: make([]byte, MaxDatagramSize+1), wantErr: ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDatagram(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDatagram() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidateFragmentCount tests the fragment count bound
func TestValidateFragmentCount(t *testing.T) {
	if err := ValidateFragmentCount(1); err != nil {
		t.Errorf("ValidateFragmentCount(1) = %v", err)
	}
	if err := ValidateFragmentCount(MaxFragmentCount); err != nil {
		t.Errorf("ValidateFragmentCount(%d) = %v", MaxFragmentCount, err)
	}
	if err := ValidateFragmentCount(0); !errors.Is(err, ErrTooManyFragments) {
		t.Errorf("ValidateFragmentCount(0) = %v, want ErrTooManyFragments", err)
	}
	if err := ValidateFragmentCount(MaxFragmentCount + 1); !errors.Is(err, ErrTooManyFragments) {
		t.Errorf("ValidateFragmentCount(%d) = %v, want ErrTooManyFragments", MaxFragmentCount+1, err)
	}
}
