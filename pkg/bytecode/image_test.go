package bytecode

import (
	"bytes"
	"path/filepath"
	"testing"
)

func sampleChunk(name string) *Chunk {
	c := NewChunk(name)
	c.Consts.AddInt(5)
	c.Consts.AddString("hello")
	c.Code.EmitImm(OpSetImm, 0, 5)
	c.Code.Emit(OpPrintI, 0, 0, 0)
	c.Meta.Add(4, "line", "2")
	return c
}

func TestImageRoundTrip(t *testing.T) {
	a := sampleChunk("main")
	b := sampleChunk("lib")

	data, err := EncodeImage(a, b)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}

	got, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("decoded %d chunks, want 2", len(got))
	}
	if got[0].Name != "main" || got[1].Name != "lib" {
		t.Errorf("chunk order = %q, %q; want main, lib", got[0].Name, got[1].Name)
	}
	if !bytes.Equal(got[0].Code.Ops, a.Code.Ops) {
		t.Error("Code mismatch")
	}
	if got[0].Code.OpCount != 2 {
		t.Errorf("OpCount = %d, want 2", got[0].Code.OpCount)
	}
	if got[0].Consts.Len() != 2 || got[0].Consts.Slots[0].Int() != 5 {
		t.Error("Constants mismatch")
	}
	if v, ok := got[0].Meta.Lookup(4, "line"); !ok || v != "2" {
		t.Errorf("Meta line = %q, %v; want 2", v, ok)
	}
}

func TestImageDeterministic(t *testing.T) {
	d1, err := EncodeImage(sampleChunk("main"))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := EncodeImage(sampleChunk("main"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d1, d2) {
		t.Error("identical chunks produced different images")
	}
}

func TestDecodeImageErrors(t *testing.T) {
	if _, err := DecodeImage([]byte{0xFF, 0x00}); err == nil {
		t.Error("DecodeImage should reject garbage")
	}

	bad, err := cborEncMode.Marshal(&Image{Magic: []byte("NOPE"), Version: ImageVersion})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeImage(bad); err == nil {
		t.Error("DecodeImage should reject bad magic")
	}

	unversioned, err := cborEncMode.Marshal(&Image{Magic: ImageMagic, Chunks: []*Chunk{sampleChunk("main")}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeImage(unversioned); err == nil {
		t.Error("DecodeImage should reject an image without a version")
	}

	future, err := cborEncMode.Marshal(&Image{Magic: ImageMagic, Version: ImageVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeImage(future); err == nil {
		t.Error("DecodeImage should reject newer versions")
	}

	lying := sampleChunk("liar")
	lying.Code.OpCount = 10
	raw, err := cborEncMode.Marshal(&Image{Magic: ImageMagic, Version: ImageVersion, Chunks: []*Chunk{lying}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeImage(raw); err == nil {
		t.Error("DecodeImage should reject an op count past the encoded bytes")
	}
}

func TestEncodeImageRejectsIncompleteChunk(t *testing.T) {
	if _, err := EncodeImage(&Chunk{Name: "x"}); err == nil {
		t.Error("EncodeImage should reject a chunk without segments")
	}
}

func TestImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.m0c")

	if err := WriteImageFile(path, sampleChunk("main")); err != nil {
		t.Fatalf("WriteImageFile: %v", err)
	}
	chunks, err := ReadImageFile(path)
	if err != nil {
		t.Fatalf("ReadImageFile: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Name != "main" {
		t.Errorf("ReadImageFile returned %v", chunks)
	}

	if _, err := ReadImageFile(filepath.Join(t.TempDir(), "missing.m0c")); err == nil {
		t.Error("ReadImageFile should fail for a missing file")
	}
}

func TestChunkBlobRoundTrip(t *testing.T) {
	data, err := MarshalChunk(sampleChunk("main"))
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	c, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}
	if c.Name != "main" || c.Code.Len() != 2 {
		t.Errorf("UnmarshalChunk = %q with %d ops", c.Name, c.Code.Len())
	}
}
