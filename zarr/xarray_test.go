package zarr

import (
	"errors"
	"math"
	"testing"

	"github.com/fishmip/ard-go/grid"
)

func monthArray(t *testing.T) *grid.DataArray {
	t.Helper()
	shape := []int{2, 1, 3, 5}
	data := seq(30)
	data[7] = math.NaN()
	da, err := grid.FromData("to", []string{"month", "depth", "lat", "lon"}, shape, data)
	if err != nil {
		t.Fatal(err)
	}
	da.Attrs["units"] = "degrees_celsius"
	for dim, c := range map[string]*grid.Coord{
		"month": grid.LabelCoord([]string{"January", "February"}),
		"depth": {Values: []float64{0}, Attrs: map[string]interface{}{"positive": "down"}},
		"lat":   grid.NewCoord([]float64{-1, 0, 1}),
		"lon":   grid.NewCoord([]float64{10, 11, 12, 13, 14}),
	} {
		if err := da.SetCoord(dim, c); err != nil {
			t.Fatal(err)
		}
	}
	da, err = da.Rechunk(map[string]grid.Chunk{"lat": grid.Fixed(2), "lon": grid.Fixed(2)})
	if err != nil {
		t.Fatal(err)
	}
	return da
}

func TestWriteDataArray(t *testing.T) {
	s := NewMemoryStore()
	da := monthArray(t)
	stats, err := WriteDataArray(s, da, WriteOptions{Compressor: DefaultCompressor()})
	if err != nil {
		t.Fatal(err)
	}
	// 4 coordinate chunks + 1*1*2*3 data chunks
	if stats.Chunks != 10 {
		t.Errorf("chunks written mismatch. want 10, got %d", stats.Chunks)
	}

	for _, key := range []string{".zgroup", ".zattrs", ".zmetadata", "to/.zarray", "to/.zattrs", "to/0.0.1.2", "month/0"} {
		if _, err := s.Get(key); err != nil {
			t.Errorf("expected key %q: %s", key, err)
		}
	}

	month, err := Open(s, "month", ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	if month.Meta().Dtype.Dtype.String() != "<U8" {
		t.Errorf("month dtype mismatch. got %s", month.Meta().Dtype.Dtype)
	}

	vars, err := DataVariables(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(vars) != 1 || vars[0] != "to" {
		t.Errorf("data variables mismatch. got %v", vars)
	}

	got, err := ReadDataArray(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "to" || got.Attrs["units"] != "degrees_celsius" {
		t.Errorf("name or attrs mismatch. got %q %v", got.Name, got.Attrs)
	}
	if _, ok := got.Attrs[DimensionsKey]; ok {
		t.Error("dimension names leaked into attrs")
	}
	for i := range da.Data {
		if da.Data[i] != got.Data[i] && !(math.IsNaN(da.Data[i]) && math.IsNaN(got.Data[i])) {
			t.Fatalf("value %d mismatch. want %v, got %v", i, da.Data[i], got.Data[i])
		}
	}
	if lons := got.Coords["lon"].Values; len(lons) != 5 || lons[4] != 14 {
		t.Errorf("lon coordinate mismatch. got %v", lons)
	}
	if labels := got.Coords["month"].Labels; len(labels) != 2 || labels[1] != "February" {
		t.Errorf("month labels mismatch. got %v", labels)
	}
	if got.Coords["depth"].Attrs["positive"] != "down" {
		t.Errorf("depth attrs mismatch. got %v", got.Coords["depth"].Attrs)
	}
	lonChunks, _ := got.ChunkSizes("lon")
	if len(lonChunks) != 3 || lonChunks[2] != 1 {
		t.Errorf("lon chunks mismatch. got %v", lonChunks)
	}
}

func TestWriteUnnamedDataArray(t *testing.T) {
	s := NewMemoryStore()
	da, err := grid.FromData("", []string{"x"}, []int{2}, []float64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDataArray(s, da, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(UnnamedVariable + "/.zarray"); err != nil {
		t.Error(err)
	}
	got, err := ReadDataArray(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "" {
		t.Errorf("expected unnamed array, got %q", got.Name)
	}
}

func TestWriteIrregularChunks(t *testing.T) {
	da := monthArray(t)
	da, err := da.Slice("lon", 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	// lon chunks are now [1 2 1]
	if _, err := WriteDataArray(NewMemoryStore(), da, WriteOptions{}); !errors.Is(err, grid.ErrIrregularChunks) {
		t.Errorf("expected ErrIrregularChunks, got %v", err)
	}
}

func TestReadDataArrayVariableCount(t *testing.T) {
	s := NewMemoryStore()
	if err := CreateGroup(s, "", nil); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b"} {
		arr, err := Create(s, name, &ArrayMeta{Shape: []int{1}, Chunks: []int{1}, Dtype: Basic(Float64)})
		if err != nil {
			t.Fatal(err)
		}
		if err := arr.SetAttributes(Attributes{DimensionsKey: []string{"x"}}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ReadDataArray(s); !errors.Is(err, ErrVariableCount) {
		t.Errorf("expected ErrVariableCount, got %v", err)
	}
}
