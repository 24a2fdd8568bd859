package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAuditSystemdUnit(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedCodes []string
	}{
		{
			name: "good unit file",
			content: `[Unit]
Description=Paseo Daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/paseod
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{},
		},
		{
			name: "missing After network-online",
			content: `[Unit]
Description=Paseo Daemon
After=network.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/paseod
RestartSec=5

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdAfterNetwork},
		},
		{
			name: "missing Wants network-online",
			content: `[Unit]
Description=Paseo Daemon
After=network-online.target

[Service]
ExecStart=/usr/bin/paseod
RestartSec=5

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdWantsNetwork},
		},
		{
			name: "RestartSec too low",
			content: `[Unit]
Description=Paseo Daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/paseod
RestartSec=1

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdRestartSec},
		},
		{
			name: "missing RestartSec",
			content: `[Unit]
Description=Paseo Daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/paseod

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdRestartSec},
		},
		{
			name: "all issues",
			content: `[Unit]
Description=Paseo Daemon

[Service]
ExecStart=/usr/bin/paseod

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{
				AuditCodeSystemdAfterNetwork,
				AuditCodeSystemdWantsNetwork,
				AuditCodeSystemdRestartSec,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			unitPath := filepath.Join(tmpDir, "paseod.service")
			if err := os.WriteFile(unitPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write unit file: %v", err)
			}

			issues, err := auditSystemdUnit(unitPath)
			if err != nil {
				t.Fatalf("auditSystemdUnit() error: %v", err)
			}
			assertCodes(t, issues, tt.expectedCodes)
		})
	}
}

func TestAuditLaunchdPlist(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedCodes []string
	}{
		{
			name: "good plist",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.getpaseo.paseod</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`,
			expectedCodes: []string{},
		},
		{
			name: "RunAtLoad false",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>RunAtLoad</key>
    <false/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`,
			expectedCodes: []string{AuditCodeLaunchdRunAtLoad},
		},
		{
			name: "missing KeepAlive",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>RunAtLoad</key>
    <true/>
</dict>
</plist>
`,
			expectedCodes: []string{AuditCodeLaunchdKeepAlive},
		},
		{
			name: "KeepAlive as dict is valid",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
</dict>
</plist>
`,
			expectedCodes: []string{},
		},
		{
			name: "all issues",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.getpaseo.paseod</string>
</dict>
</plist>
`,
			expectedCodes: []string{AuditCodeLaunchdRunAtLoad, AuditCodeLaunchdKeepAlive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			plistPath := filepath.Join(tmpDir, "com.getpaseo.paseod.plist")
			if err := os.WriteFile(plistPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write plist file: %v", err)
			}

			issues, err := auditLaunchdPlist(plistPath)
			if err != nil {
				t.Fatalf("auditLaunchdPlist() error: %v", err)
			}
			assertCodes(t, issues, tt.expectedCodes)
		})
	}
}

func TestAuditInstalledServiceDispatchesByPlatform(t *testing.T) {
	tmpDir := t.TempDir()
	unitPath := filepath.Join(tmpDir, "paseod.service")
	content := "[Unit]\nDescription=Paseo Daemon\n"
	if err := os.WriteFile(unitPath, []byte(content), 0644); err != nil {
		t.Fatalf("write unit file: %v", err)
	}

	audit, err := AuditInstalledService(AuditParams{Platform: "linux", SourcePath: unitPath})
	if err != nil {
		t.Fatalf("AuditInstalledService() error: %v", err)
	}
	if audit.OK {
		t.Fatalf("expected issues for a minimal unit file")
	}

	audit, err = AuditInstalledService(AuditParams{Platform: "windows"})
	if err != nil {
		t.Fatalf("AuditInstalledService() error: %v", err)
	}
	if !audit.OK {
		t.Fatalf("windows has no unit file to audit, expected OK")
	}
}

func assertCodes(t *testing.T, issues []ServiceConfigIssue, expectedCodes []string) {
	t.Helper()
	if len(issues) != len(expectedCodes) {
		t.Errorf("expected %d issues, got %d: %+v", len(expectedCodes), len(issues), issues)
		return
	}
	for _, expected := range expectedCodes {
		found := false
		for _, issue := range issues {
			if issue.Code == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected to find issue code %q in %+v", expected, issues)
		}
	}
}
