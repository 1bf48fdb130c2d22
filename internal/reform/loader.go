package reform

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadCatalog compiles every CUE file in dir and decodes the top-level
// "reforms" list into a validated Catalog.
//
// Uses the CUE SDK's Go API directly (not a CLI subprocess). A minimal
// catalog looks like:
//
//	package reforms
//
//	reforms: [
//		{id: 1, name: "raise_std_deduction", params: {STD_single: 8000}},
//		{id: 2, name: "repeal_amt", params: {AMT_trt1: 0.0}},
//	]
func LoadCatalog(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("reform catalog directory not found: %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("access reform catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	cueFiles, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scan reform catalog directory: %w", err)
	}
	if len(cueFiles) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("build CUE instance: %w", err)
	}

	var decoded struct {
		Reforms []Reform `json:"reforms"`
	}
	if err := v.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode reform catalog: %w", err)
	}

	catalog := &Catalog{Reforms: decoded.Reforms}
	if err := catalog.validate(); err != nil {
		return nil, fmt.Errorf("invalid reform catalog: %w", err)
	}
	return catalog, nil
}
