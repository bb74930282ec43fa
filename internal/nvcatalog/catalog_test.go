package nvcatalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if c.Len() == 0 {
		t.Fatal("default catalog is empty")
	}

	tests := []struct {
		id   uint16
		want string
	}{
		{550, "NV_UE_IMEI_I"},
		{1027, "NV_MDSP_MEM_DUMP_ENABLED_I"},
		{4399, "NV_DETECT_HW_RESET_I"},
		{0xFFFF, ""},
	}
	for _, tt := range tests {
		if got := c.Name(tt.id); got != tt.want {
			t.Errorf("Name(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}

	again, _ := Default()
	if again != c {
		t.Error("Default() should return the same catalog")
	}
}

func TestItemsSorted(t *testing.T) {
	c, _ := Default()
	items := c.Items()
	for i := 1; i < len(items); i++ {
		if items[i-1].ID >= items[i].ID {
			t.Fatalf("items not sorted at %d: %d >= %d", i, items[i-1].ID, items[i].ID)
		}
	}
}

func TestParseXML(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<nvitems>
  <nv id="550" name="NV_UE_IMEI_I"/>
  <nv id="10" name="NV_PREF_MODE_I"/>
  <nv id="10" name="NV_PREF_MODE_OVERRIDE_I"/>
</nvitems>`

	c, err := ParseXML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if got := c.Name(10); got != "NV_PREF_MODE_OVERRIDE_I" {
		t.Errorf("Name(10) = %q, later duplicate should win", got)
	}
	if id, ok := c.Lookup("nv_ue_imei_i"); !ok || id != 550 {
		t.Errorf("Lookup() = %d, %v", id, ok)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	xmlPath := filepath.Join(dir, "nvitems.xml")
	if err := os.WriteFile(xmlPath, []byte(`<r><nv id="1" name="ONE"/></r>`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(xmlPath)
	if err != nil {
		t.Fatalf("Load(xml) error = %v", err)
	}
	if c.Name(1) != "ONE" {
		t.Errorf("Name(1) = %q", c.Name(1))
	}

	yamlPath := filepath.Join(dir, "items.yaml")
	if err := os.WriteFile(yamlPath, []byte("items:\n  - id: 2\n    name: TWO\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = Load(yamlPath)
	if err != nil {
		t.Fatalf("Load(yaml) error = %v", err)
	}
	if c.Name(2) != "TWO" {
		t.Errorf("Name(2) = %q", c.Name(2))
	}

	if _, err := Load(filepath.Join(dir, "missing.xml")); err == nil {
		t.Error("Load(missing) should fail")
	}
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	if c.Name(550) != "" || c.Len() != 0 || c.Items() != nil {
		t.Error("nil catalog should be empty")
	}
	if _, ok := c.Lookup("X"); ok {
		t.Error("nil catalog Lookup should miss")
	}
}
