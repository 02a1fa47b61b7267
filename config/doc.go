// Package config provides a handler registry, human-readable pipeline
// definitions, and runtime settings.
//
// Register handlers by name (DefaultRegistry already holds the httpstages
// built-ins), then define pipelines in YAML that reference those names:
//
//	pipelines:
//	  info:
//	    handlers: [status, headers, cookies]
//	  items:
//	    develop: info
//	    handlers:
//	      - json
//	      - name: extract
//	        key: count
//	        expression: length(items)
//	      - name: expect
//	        expression: "count > `0`"
//	        reason: no items
//	        timeout: 2s
//
// "develop" starts a pipeline with every handler of another one. Build them
// with BuildAllPipelines(registry, config, opts); develop references are
// resolved in dependency order and cycles are reported.
//
// LoadSettings reads runtime settings from a YAML file and RESPIPE_*
// environment variables.
package config
