package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

const testMigrationsDir = "../../db/migrations"

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(testMigrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestFlowMigrationDefersPositionUniqueness(t *testing.T) {
	files, err := migrationFiles(testMigrationsDir, upSuffix)
	if err != nil {
		t.Fatalf("migrationFiles() error = %v", err)
	}
	var flows string
	for _, file := range files {
		if strings.Contains(filepath.Base(file), "flows") {
			raw, err := os.ReadFile(file)
			if err != nil {
				t.Fatalf("read %s: %v", file, err)
			}
			flows = string(raw)
		}
	}
	if flows == "" {
		t.Fatal("flows migration not found")
	}
	for _, constraint := range []string{"uq_flow_stages_position", "uq_flow_nodes_position"} {
		idx := strings.Index(flows, constraint)
		if idx < 0 {
			t.Fatalf("constraint %s missing", constraint)
		}
		line := flows[idx:]
		line = line[:strings.Index(line, "\n")]
		if !strings.Contains(line, "DEFERRABLE INITIALLY DEFERRED") {
			t.Fatalf("constraint %s must be deferred: %q", constraint, line)
		}
	}
	if !strings.Contains(flows, "uq_flow_nodes_content UNIQUE (flow_id, content_id)") {
		t.Fatal("content must be unique per flow")
	}
}
