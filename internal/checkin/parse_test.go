package checkin

import "testing"

func TestParseQRBareJSON(t *testing.T) {
	p, err := parseQR(`{"courseId":42,"sessionId":7,"code":"650610123","hash":"abc123"}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if p.CourseID != 42 || p.SessionID != 7 {
		t.Fatalf("unexpected ids: %d %d", p.CourseID, p.SessionID)
	}
	if p.StudentCode != "650610123" || p.Hash != "abc123" {
		t.Fatalf("unexpected code/hash: %s %s", p.StudentCode, p.Hash)
	}
}

func TestParseQRStringIDs(t *testing.T) {
	p, err := parseQR(`{"courseId":"42","sessionId":"7","code":"650610123","hash":"abc"}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if p.CourseID != 42 || p.SessionID != 7 {
		t.Fatalf("expected string ids to coerce, got %d %d", p.CourseID, p.SessionID)
	}
}

func TestParseQRCompositeFormat(t *testing.T) {
	raw := `reference *reference https://mobile.example.edu/scan {"courseId":42,"sessionId":7,"code":"650610123","hash":"abc123"}`
	p, err := parseQR(raw)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if p.CourseID != 42 || p.SessionID != 7 || p.StudentCode != "650610123" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestParseQRCompositeJSONWithSpaces(t *testing.T) {
	raw := `engqr:reference https://mobile.example.edu/scan {"courseId": 42, "sessionId": 7, "code": "650610123", "hash": "abc"}`
	p, err := parseQR(raw)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if p.CourseID != 42 || p.Hash != "abc" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestParseQRRejectsNonJSON(t *testing.T) {
	if _, err := parseQR("just a plain string"); err == nil {
		t.Fatalf("expected error for payload without JSON")
	}
	if _, err := parseQR("{not valid json"); err == nil {
		t.Fatalf("expected error for broken JSON")
	}
}

func TestParseQRMissingFields(t *testing.T) {
	p, err := parseQR(`{"code":"650610123"}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if p.CourseID != 0 || p.SessionID != 0 {
		t.Fatalf("expected absent ids to be zero, got %d %d", p.CourseID, p.SessionID)
	}
}
