package persistence

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ffutop/co2e-gateway/internal/store/model"
)

func benchDocument(n int) *model.Document {
	doc := model.NewDocument()
	for i := 0; i < n; i++ {
		doc.Templates = append(doc.Templates, model.RequestTemplate{
			ID:             fmt.Sprintf("id_template_%d", i),
			Endpoint:       "https://beta4.api.climatiq.io/estimate",
			QuantityField:  "energy",
			Parameters:     map[string]string{"energy": "100", "energy_unit": "kWh"},
			FactorSelector: map[string]string{"id": fmt.Sprintf("factor-%d", i)},
		})
		doc.Defaults = append(doc.Defaults, model.DefaultEntry{ID: fmt.Sprintf("id_default_%d", i), Factor: float64(i)})
	}
	return doc
}

func benchmarkLoad(b *testing.B, s Storage) {
	if err := s.Save(benchDocument(200)); err != nil {
		b.Fatalf("Failed to save document: %v", err)
	}
	defer s.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Load(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMemoryStorage_Load benchmarks the Load operation for MemoryStorage.
func BenchmarkMemoryStorage_Load(b *testing.B) {
	benchmarkLoad(b, NewMemoryStorage())
}

// BenchmarkFileStorage_Load benchmarks the Load operation for FileStorage.
func BenchmarkFileStorage_Load(b *testing.B) {
	benchmarkLoad(b, NewFileStorage(filepath.Join(b.TempDir(), "bench.xml")))
}

// BenchmarkMmapStorage_Load benchmarks the Load operation for MmapStorage.
func BenchmarkMmapStorage_Load(b *testing.B) {
	benchmarkLoad(b, NewMmapStorage(filepath.Join(b.TempDir(), "bench_mmap.xml")))
}

// BenchmarkSQLStorage_Load benchmarks the Load operation for SQLStorage.
func BenchmarkSQLStorage_Load(b *testing.B) {
	benchmarkLoad(b, NewSQLStorage(filepath.Join(b.TempDir(), "bench.db")))
}

func BenchmarkFileStorage_Save(b *testing.B) {
	s := NewFileStorage(filepath.Join(b.TempDir(), "bench_save.xml"))
	doc := benchDocument(200)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Save(doc); err != nil {
			b.Fatal(err)
		}
	}
}
