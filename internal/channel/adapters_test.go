package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
)

func TestChecksumStable(t *testing.T) {
	c1 := Checksum(Email, "id-1", "alice@example.com", "hello")
	c2 := Checksum(Email, "id-1", "alice@example.com", "hello")
	if c1 != c2 {
		t.Fatalf("checksum not stable: %s vs %s", c1, c2)
	}
	if len(c1) != 64 {
		t.Fatalf("expected hex sha256, got %q", c1)
	}
	if Checksum(SMS, "id-1", "alice@example.com", "hello") == c1 {
		t.Fatal("checksum should depend on channel")
	}
	// Field boundaries must matter: "ab"+"c" and "a"+"bc" differ.
	if Checksum(Email, "ab", "c", "x") == Checksum(Email, "a", "bc", "x") {
		t.Fatal("checksum field separator missing")
	}
}

func TestEmailAdapterParse(t *testing.T) {
	payload := json.RawMessage(`{
		"message_id": "<m1@mail.example>",
		"from": {"name": "Alice Martin", "email": "alice@example.com"},
		"to": {"email": "cabinet@juralis.example"},
		"subject": "Dossier Contrat 2026",
		"text": "Bonjour, ci-joint le contrat.",
		"attachments": [{"filename": "contrat.pdf", "content_type": "application/pdf", "content": "UERGX0NPTlRFTlRfVjE="}]
	}`)
	a := &EmailAdapter{}
	if got := a.ExtractExternalID(payload); got != "<m1@mail.example>" {
		t.Fatalf("external id = %q", got)
	}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg.Sender == nil || msg.Sender.Email != "alice@example.com" || msg.Sender.Name != "Alice Martin" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(msg.Attachments))
	}
	if string(msg.Attachments[0].Data) != "PDF_CONTENT_V1" {
		t.Fatalf("attachment content = %q", msg.Attachments[0].Data)
	}
	if msg.Attachments[0].Size != int64(len("PDF_CONTENT_V1")) {
		t.Fatalf("attachment size = %d", msg.Attachments[0].Size)
	}
}

func TestWhatsAppAdapterNestedExternalID(t *testing.T) {
	payload := json.RawMessage(`{"entry":[{"changes":[{"value":{
		"contacts":[{"wa_id":"33612345678","profile":{"name":"Alice Martin"}}],
		"messages":[{"id":"wamid.XYZ","from":"33612345678","timestamp":"1756500000","type":"text","text":{"body":"bonjour"}}]
	}}]}]}`)
	a := &WhatsAppAdapter{}
	if got := a.ExtractExternalID(payload); got != "wamid.XYZ" {
		t.Fatalf("external id = %q", got)
	}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg.Body != "bonjour" {
		t.Fatalf("body = %q", msg.Body)
	}
	if msg.Sender == nil || msg.Sender.Phone != "33612345678" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
}

func TestWhatsAppAdapterEmptyBatch(t *testing.T) {
	payload := json.RawMessage(`{"entry":[{"changes":[{"value":{"messages":[]}}]}]}`)
	a := &WhatsAppAdapter{}
	if got := a.ExtractExternalID(payload); got != "" {
		t.Fatalf("expected empty external id, got %q", got)
	}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("empty batch should not fail: %v", err)
	}
	if msg.ExternalID != "" {
		t.Fatalf("external id = %q", msg.ExternalID)
	}
}

func TestTeamsAdapterEmptyBatch(t *testing.T) {
	a := &TeamsAdapter{}
	if got := a.ExtractExternalID(json.RawMessage(`{"value":[]}`)); got != "" {
		t.Fatalf("expected empty external id, got %q", got)
	}
}

func TestSlackSignature(t *testing.T) {
	raw := []byte(`{"event_id":"Ev1","event":{"text":"hi"}}`)
	mac := hmac.New(sha256.New, []byte("slack-secret"))
	mac.Write(raw)
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	a := &SlackAdapter{}
	if !a.ValidateSignature(sig, raw, "slack-secret") {
		t.Fatal("valid signature rejected")
	}
	if a.ValidateSignature(sig, raw, "wrong-secret") {
		t.Fatal("signature accepted under wrong secret")
	}
	if a.ValidateSignature("v0=deadbeef", raw, "slack-secret") {
		t.Fatal("bad signature accepted")
	}
	if a.ValidateSignature("", raw, "slack-secret") {
		t.Fatal("empty signature accepted")
	}
}

func TestSMSAdapterMissingMediaURL(t *testing.T) {
	payload := json.RawMessage(`{"MessageSid":"SM1","From":"+33600000001","To":"+33700000001","Body":"rdv demain","NumMedia":"1"}`)
	a := &SMSAdapter{}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected placeholder attachment, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].URL != "" || msg.Attachments[0].Size != 0 {
		t.Fatalf("placeholder attachment = %+v", msg.Attachments[0])
	}
}

func TestFormAdapterFlattensFields(t *testing.T) {
	payload := json.RawMessage(`{"form_id":"contact","submission_id":"sub-9","fields":{
		"first_name":"Alice","last_name":"Martin","email":"alice@example.com",
		"dossier":"Dossier Contrat 2026","budget":"5000","urgence":"haute"
	}}`)
	a := &FormAdapter{}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg.Sender == nil || msg.Sender.Name != "Alice Martin" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
	if msg.DossierTitle != "Dossier Contrat 2026" {
		t.Fatalf("dossier title = %q", msg.DossierTitle)
	}
	if msg.Body != "budget: 5000\nurgence: haute" {
		t.Fatalf("body = %q", msg.Body)
	}
}

func TestTwitterAdapterResolvesSenderFromUsersMap(t *testing.T) {
	payload := json.RawMessage(`{
		"direct_message_events":[{"id":"dm-1","created_timestamp":"1756500000000",
			"message_create":{"sender_id":"u42","target":{"recipient_id":"u1"},"message_data":{"text":"besoin d'aide"}}}],
		"users":{"u42":{"name":"Alice Martin","screen_name":"alicem"}}
	}`)
	a := &TwitterAdapter{}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg.Sender == nil || msg.Sender.Name != "Alice Martin" || msg.Sender.ExternalID != "u42" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
	if msg.ExternalID != "dm-1" {
		t.Fatalf("external id = %q", msg.ExternalID)
	}
}

func TestDocumentAdapterInlineContent(t *testing.T) {
	payload := json.RawMessage(`{"upload_id":"up-1","filename":"contrat.pdf","content_type":"application/pdf",
		"content":"UERGX0NPTlRFTlRfVjE=","dossier":"Dossier Contrat 2026",
		"uploader":{"name":"Alice Martin","email":"alice@example.com"}}`)
	a := &DocumentAdapter{}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msg.Attachments) != 1 || string(msg.Attachments[0].Data) != "PDF_CONTENT_V1" {
		t.Fatalf("attachments = %+v", msg.Attachments)
	}
	if msg.DossierTitle != "Dossier Contrat 2026" {
		t.Fatalf("dossier title = %q", msg.DossierTitle)
	}
}

func TestVoiceAdapterAlwaysListsRecording(t *testing.T) {
	payload := json.RawMessage(`{"call_id":"call-7","from":"+33611111111","caller_name":"Alyce Martine","transcript":"je rappelle au sujet du contrat"}`)
	a := &VoiceAdapter{}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].URL != "" {
		t.Fatalf("expected placeholder recording, got %+v", msg.Attachments)
	}
	if msg.Sender == nil || msg.Sender.Name != "Alyce Martine" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
}

func TestInternalAdapterOutboundDirection(t *testing.T) {
	payload := json.RawMessage(`{"note_id":"n1","body":"relance client","outbound":true,"author":{"name":"Me Dupont"}}`)
	a := &InternalAdapter{}
	msg, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg.Direction != "OUTBOUND" {
		t.Fatalf("direction = %q", msg.Direction)
	}
}
