package alerts

// Entity kinds that emit events.
const (
	EntityModelEndpointResult = "model-endpoint-result"
	EntityModel               = "model"
	EntityJob                 = "job"
)

// eventEntityKinds maps known event kinds to the entity kinds allowed to
// emit them. Kinds missing from the table are accepted from any entity.
var eventEntityKinds = map[string][]string{
	"drift_detected":               {EntityModelEndpointResult, EntityModel},
	"drift_suspected":              {EntityModelEndpointResult, EntityModel},
	"data_drift_detected":          {EntityModelEndpointResult, EntityModel},
	"data_drift_suspected":         {EntityModelEndpointResult, EntityModel},
	"concept_drift_detected":       {EntityModelEndpointResult, EntityModel},
	"concept_drift_suspected":      {EntityModelEndpointResult, EntityModel},
	"model_performance_detected":   {EntityModelEndpointResult, EntityModel},
	"model_performance_suspected":  {EntityModelEndpointResult, EntityModel},
	"system_performance_detected":  {EntityModelEndpointResult, EntityModel},
	"system_performance_suspected": {EntityModelEndpointResult, EntityModel},
	"mm_app_anomaly_detected":      {EntityModelEndpointResult, EntityModel},
	"mm_app_anomaly_suspected":     {EntityModelEndpointResult, EntityModel},
	"failed":                       {EntityJob},
}

// IsKnownEventKind reports whether kind has an entry in the event table.
func IsKnownEventKind(kind string) bool {
	_, ok := eventEntityKinds[kind]
	return ok
}

// EntityKindAllowed reports whether entityKind may emit eventKind.
func EntityKindAllowed(eventKind, entityKind string) bool {
	allowed, ok := eventEntityKinds[eventKind]
	if !ok {
		return true
	}
	for _, k := range allowed {
		if k == entityKind {
			return true
		}
	}
	return false
}

// EntityKindsFor returns the entity kinds allowed to emit eventKind, or nil
// when any entity may emit it.
func EntityKindsFor(eventKind string) []string {
	return eventEntityKinds[eventKind]
}
