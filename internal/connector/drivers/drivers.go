// Package drivers registers every built-in connector driver. Importing
// it for side effects wires the full backend set into the gateway:
//
//	import _ "github.com/probeflow/probeflow/internal/connector/drivers"
package drivers

import (
	_ "github.com/probeflow/probeflow/internal/connector/drivers/esconn"
	_ "github.com/probeflow/probeflow/internal/connector/drivers/kafkaconn"
	_ "github.com/probeflow/probeflow/internal/connector/drivers/mongoconn"
	_ "github.com/probeflow/probeflow/internal/connector/drivers/rabbitconn"
	_ "github.com/probeflow/probeflow/internal/connector/drivers/redisconn"
	_ "github.com/probeflow/probeflow/internal/connector/drivers/sqlconn"
)
