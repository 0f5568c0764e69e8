// Command schema-gen writes JSON Schema bundles for the documents the ingester
// writes and for the request/response bodies of the ingestion surfaces, so
// readers of the document store can validate what they load.
//
//	go run ./cmd/schema-gen [-out ./schemas]
//
// One file is written per bundle: records.json and ingestion.json.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/kosarica/catalog-ingest/internal/handlers"
	"github.com/kosarica/catalog-ingest/internal/pipeline"
	"github.com/kosarica/catalog-ingest/internal/types"
)

const schemaBaseURL = "https://catalog-ingest.local/schemas/"

type bundle struct {
	name  string
	title string
	types []any
}

var bundles = []bundle{
	{
		name:  "records",
		title: "Catalog document records",
		types: []any{pipeline.ProductRecord{}, pipeline.RetailerItemRecord{}, pipeline.StoreItemRecord{}},
	},
	{
		name:  "ingestion",
		title: "Ingestion requests and results",
		types: []any{handlers.FetchRequest{}, pipeline.ObjectEvent{}, pipeline.Result{}, types.IngestionContext{}},
	},
}

func main() {
	out := flag.String("out", "./schemas", "output directory")
	flag.Parse()

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "schema-gen: %v\n", err)
		os.Exit(1)
	}
}

func run(out string) error {
	if err := os.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	for _, b := range bundles {
		target := filepath.Join(out, b.name+".json")
		if err := write(target, b.schema()); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		fmt.Println("wrote", target)
	}
	return nil
}

// schema merges the definitions of every type in the bundle into one document
func (b bundle) schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{}
	defs := jsonschema.Definitions{}
	for _, t := range b.types {
		maps.Copy(defs, r.Reflect(t).Definitions)
	}
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          jsonschema.ID(schemaBaseURL + b.name + ".json"),
		Title:       b.title,
		Definitions: defs,
	}
}

func write(target string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(target, append(data, '\n'), 0644)
}
