// Package addon discovers addons on disk and attaches their routers to the
// application.
//
// An addon is a direct subdirectory of the addons root whose name does not
// start with "." or "_" and which contains a router.yaml manifest:
//
//	router:
//	  prefix: /inventory
//	  tags: [inventory]
//	  routes:
//	    - name: list_items
//	      path: /items
//	      sql: SELECT id, name FROM items ORDER BY id
//	    - name: ping
//	      path: /ping
//	      response:
//	        json: {pong: true}
//
// Failures are isolated per addon: a broken addon is logged and skipped, and
// discovery of the remaining addons continues.
package addon
