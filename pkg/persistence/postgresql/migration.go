package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create flow_graphs table
			CREATE TABLE flow_graphs (
				flow_id VARCHAR(128) PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_flow_graphs_owner_id ON flow_graphs(owner_id);
		`,
		2: `
			-- Track how many times a flow has been saved
			ALTER TABLE flow_graphs ADD COLUMN revision BIGINT NOT NULL DEFAULT 0;
		`,
	}
}
