package crypto

import (
	"strings"
	"testing"
)

func TestNewNanoID(t *testing.T) {
	tests := []struct {
		name         string
		alphabet     string
		size         int
		wantErr      error
		wantAlphabet string
		wantSize     int
	}{
		{name: "empty alphabet uses default", alphabet: "", size: 0, wantAlphabet: defaultAlphabet, wantSize: defaultSize},
		{name: "custom alphabet", alphabet: "ABCDEFGH", size: 10, wantAlphabet: "ABCDEFGH", wantSize: 10},
		{name: "alphabet too long", alphabet: strings.Repeat("a", 256), wantErr: ErrAlphabetTooLong},
		{name: "alphabet too short", alphabet: "abc", wantErr: ErrAlphabetTooShort},
		{name: "non ascii", alphabet: "abcdefgé", wantErr: ErrAlphabetNotASCII},
		{name: "invalid utf8", alphabet: "abcdefg\xff", wantErr: ErrAlphabetInvalidUTF8},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Act
			gen, err := NewNanoID(test.alphabet, test.size)

			// Assert
			if err != test.wantErr {
				t.Fatalf("NewNanoID() error = %v, want %v", err, test.wantErr)
			}
			if test.wantErr != nil {
				return
			}
			if gen.alphabet != test.wantAlphabet {
				t.Errorf("alphabet = %q, want %q", gen.alphabet, test.wantAlphabet)
			}
			if gen.size != test.wantSize {
				t.Errorf("size = %d, want %d", gen.size, test.wantSize)
			}
		})
	}
}

func TestNanoIDGenerator_GetMask(t *testing.T) {
	tests := []struct {
		alphabetLen int
		wantMask    int
	}{
		{alphabetLen: 8, wantMask: 15},
		{alphabetLen: 16, wantMask: 31},
		{alphabetLen: 32, wantMask: 63},
		{alphabetLen: 64, wantMask: 127},
		{alphabetLen: 255, wantMask: 255},
	}

	for _, test := range tests {
		if got := getMask(test.alphabetLen); got != test.wantMask {
			t.Errorf("getMask(%d) = %d, want %d", test.alphabetLen, got, test.wantMask)
		}
	}
}

// Requirement: recovery codes only use the unambiguous alphabet.
func TestRecoveryCodeGenerator(t *testing.T) {
	// Arrange
	gen := NewRecoveryCodeGenerator()
	seen := make(map[string]bool)

	for i := 0; i < 200; i++ {
		// Act
		code, err := gen.Generate()

		// Assert
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(code) != RecoveryCodeLength {
			t.Fatalf("code length = %d, want %d", len(code), RecoveryCodeLength)
		}
		for _, r := range code {
			if !strings.ContainsRune(RecoveryCodeAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}
