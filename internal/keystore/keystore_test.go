package keystore

import (
	"bytes"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		xorHex  string
		aesHex  string
		wantErr bool
		wantXor bool
		wantAES bool
	}{
		{"xor only", "37", "", false, true, false},
		{"both keys", "37", "000102030405060708090a0b0c0d0e0f", false, true, true},
		{"aes only", "", "000102030405060708090a0b0c0d0e0f", false, false, true},
		{"no keys", "", "", true, false, false},
		{"bad xor hex", "zz", "", true, false, false},
		{"xor too long", "3737", "", true, false, false},
		{"aes too short", "37", "0001", true, false, false},
		{"bad aes hex", "37", "zz0102030405060708090a0b0c0d0e0f", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, err := New(tt.xorHex, tt.aesHex)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if _, ok := ks.XorKey(); ok != tt.wantXor {
				t.Errorf("XorKey() present = %v, want %v", ok, tt.wantXor)
			}
			if _, ok := ks.AESKey(); ok != tt.wantAES {
				t.Errorf("AESKey() present = %v, want %v", ok, tt.wantAES)
			}
		})
	}
}

func TestNewNoKeysSentinel(t *testing.T) {
	_, err := New("", "")
	if !errors.Is(err, ErrNoKeys) {
		t.Errorf("New(\"\", \"\") error = %v, want ErrNoKeys", err)
	}
}

func TestNewXorValue(t *testing.T) {
	ks, err := New("37", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	xor, ok := ks.XorKey()
	if !ok || xor != 0x37 {
		t.Errorf("XorKey() = (%#x, %v), want (0x37, true)", xor, ok)
	}
}

func TestFromPassphraseDeterministic(t *testing.T) {
	salt := []byte("account-1234")

	a := FromPassphrase("hunter2", salt)
	b := FromPassphrase("hunter2", salt)

	axor, _ := a.XorKey()
	bxor, _ := b.XorKey()
	if axor != bxor {
		t.Errorf("same passphrase derived different xor keys: %#x vs %#x", axor, bxor)
	}

	aaes, ok := a.AESKey()
	if !ok || len(aaes) != AESKeySize {
		t.Fatalf("AESKey() = (%d bytes, %v), want (%d, true)", len(aaes), ok, AESKeySize)
	}
	baes, _ := b.AESKey()
	if !bytes.Equal(aaes, baes) {
		t.Error("same passphrase derived different aes keys")
	}

	c := FromPassphrase("different", salt)
	caes, _ := c.AESKey()
	if bytes.Equal(aaes, caes) {
		t.Error("different passphrases derived identical aes keys")
	}
}
