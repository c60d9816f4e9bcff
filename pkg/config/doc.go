/*
Package config loads the node configuration.

Configuration comes from a YAML file laid over Default(); flags on the serve
command override both. A complete file:

	node_address: 12
	max_local_requests: 101
	max_remote_requests: 199
	max_clients: 100
	banks:
	  host: 20
	  variable: 20
	  host_variable: 30
	  variable_revision: {variable: 100, revision: 20}
	  remote_revision: {host_variable: 20, revision: 20}
	data_dir: /var/lib/mcci
	schema_file: /etc/mcci/schema.yaml
	strict_fingerprint: true
	listen_addr: 127.0.0.1:7420
	metrics_addr: 127.0.0.1:9420
	sweep_interval: 1s
	session_buffer: 64
	log: {level: info, json: false}

Bank sizes are hints; each is rounded up to the next tabled prime.
*/
package config
