package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE triggers (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				event_identifier VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'disabled')),
				combinator VARCHAR(10) NOT NULL DEFAULT 'all',
				conditions JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_triggers_event_status ON triggers(event_identifier, status);

			CREATE TABLE actions (
				trigger_id VARCHAR(255) NOT NULL REFERENCES triggers(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				action_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				position INT NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				config JSONB NOT NULL DEFAULT '{}',
				PRIMARY KEY (trigger_id, id)
			);
		`,
		2: `
			-- Run history outlives the trigger, so no foreign key to triggers.
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				trigger_id VARCHAR(255) NOT NULL,
				event_identifier VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB,
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_trigger ON executions(trigger_id, started_at DESC);

			CREATE TABLE execution_steps (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				action_id VARCHAR(255) NOT NULL,
				action_type VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB,
				output JSONB,
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_execution_steps_execution ON execution_steps(execution_id, position);

			CREATE TABLE action_logs (
				id VARCHAR(255) PRIMARY KEY,
				trigger_id VARCHAR(255) NOT NULL,
				action_id VARCHAR(255) NOT NULL,
				event_identifier VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'success', 'failed')),
				attempt INT NOT NULL DEFAULT 1,
				payload JSONB,
				response JSONB,
				message TEXT NOT NULL DEFAULT '',
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_action_logs_trigger ON action_logs(trigger_id, executed_at DESC);
		`,
		3: `
			CREATE TABLE credentials (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				credential_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'revoked', 'error')),
				secrets JSONB NOT NULL DEFAULT '{}',
				scopes TEXT[] NOT NULL DEFAULT '{}',
				expires_at TIMESTAMP WITH TIME ZONE,
				last_used_at TIMESTAMP WITH TIME ZONE,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE credential_access_logs (
				id VARCHAR(255) PRIMARY KEY,
				credential_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255),
				workflow_id VARCHAR(255),
				action VARCHAR(100) NOT NULL,
				params JSONB,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'success', 'failed', 'denied')),
				error_message TEXT,
				ip_address VARCHAR(64),
				user_agent TEXT,
				is_suspicious BOOLEAN NOT NULL DEFAULT false,
				suspicious_reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_credential_access_logs_credential ON credential_access_logs(credential_id, created_at DESC);
			CREATE INDEX idx_credential_access_logs_suspicious ON credential_access_logs(is_suspicious) WHERE is_suspicious;
		`,
	}
}
