package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %s", got)
	}
}

func TestKeyIgnoresOrder(t *testing.T) {
	if Key("/a", "/b") != Key("/b", "/a") {
		t.Error("Key depends on order")
	}
	if Key("/a", "/b") == Key("/a/b") {
		t.Error("Key collides across separators")
	}
}
