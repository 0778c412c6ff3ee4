package db

import "fmt"

const schemaTemplate = `
    -- ==========================================================================
    -- DOCUMENT CHUNKS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS document_chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS tenant_id ON document_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS cartridge_id ON document_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS filename ON document_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS text ON document_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS position ON document_chunk TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS embedding ON document_chunk TYPE array<float>
        ASSERT array::len($value) = %[1]d;
    DEFINE FIELD IF NOT EXISTS created_at ON document_chunk TYPE datetime DEFAULT time::now() READONLY;

    DEFINE INDEX IF NOT EXISTS chunk_cartridge ON document_chunk FIELDS cartridge_id;
    DEFINE INDEX IF NOT EXISTS chunk_tenant ON document_chunk FIELDS tenant_id;
    DEFINE INDEX IF NOT EXISTS chunk_embedding ON document_chunk FIELDS embedding HNSW DIMENSION %[1]d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- SESSIONS + TRANSCRIPT
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS session SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON session TYPE string;
    DEFINE FIELD IF NOT EXISTS cartridge_id ON session TYPE string;
    DEFINE FIELD IF NOT EXISTS channel ON session TYPE string DEFAULT "web";
    DEFINE FIELD IF NOT EXISTS status ON session TYPE string ASSERT $value IN ["active", "ended"];
    DEFINE FIELD IF NOT EXISTS created_at ON session TYPE datetime DEFAULT time::now() READONLY;
    DEFINE FIELD IF NOT EXISTS ended_at ON session TYPE option<datetime>;
    DEFINE INDEX IF NOT EXISTS session_user ON session FIELDS user_id;

    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string ASSERT $value IN ["user", "model", "system"];
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now() READONLY;
    DEFINE INDEX IF NOT EXISTS message_session ON message FIELDS session_id, created_at;

    -- ==========================================================================
    -- CREDITS + CALLS
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS credit SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON credit TYPE string;
    DEFINE FIELD IF NOT EXISTS balance ON credit TYPE int DEFAULT 0 ASSERT $value >= 0;
    DEFINE FIELD IF NOT EXISTS updated_at ON credit TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS call SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON call TYPE string;
    DEFINE FIELD IF NOT EXISTS session_id ON call TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS cartridge_id ON call TYPE string;
    DEFINE FIELD IF NOT EXISTS channel ON call TYPE string;
    DEFINE FIELD IF NOT EXISTS credits_used ON call TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS duration_seconds ON call TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON call TYPE datetime DEFAULT time::now() READONLY;
    DEFINE INDEX IF NOT EXISTS call_user ON call FIELDS user_id, created_at;
`

// SchemaSQL returns the schema with the vector index sized to dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}
