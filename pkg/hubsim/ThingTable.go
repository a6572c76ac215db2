package hubsim

import (
	"github.com/google/uuid"

	"github.com/maveohome/maveolib-go/pkg/things"
)

// Well-known identifiers of the simulated garage door installation, for use
// in tests that need to address the door directly.
var (
	VendorID           = uuid.MustParse("9a1cbb06-3916-4a3f-8a68-02480b3e0a02")
	StickThingClassID  = uuid.MustParse("ca6baab8-3708-4478-8ca2-7d4d6d542937")
	DoorStateTypeID    = uuid.MustParse("0f6a2c42-e20e-408c-8d4e-cf4ffd852fcd")
	VersionStateTypeID = uuid.MustParse("6a70a34a-01a1-4da5-a1cf-b48e0e9f41a7")
	OpenActionTypeID   = uuid.MustParse("bd744452-3ab3-4a08-8d94-1296f4af01b9")
	CloseActionTypeID  = uuid.MustParse("de2c0b16-f0c5-44ad-9b09-4bf7d2e23bb5")
	GarageDoorThingID  = uuid.MustParse("58a61901-1e17-45f2-90db-2e55e20ca903")
)

// thingRecord is a simulated thing and its current state values
type thingRecord struct {
	ID           uuid.UUID
	ThingClassID uuid.UUID
	Name         string
	states       map[uuid.UUID]interface{}
}

// stateValues returns the current values in wire format. Caller must hold the table lock.
func (record *thingRecord) stateValues() []things.StateValue {
	values := make([]things.StateValue, 0, len(record.states))
	for stateTypeID, value := range record.states {
		values = append(values, things.StateValue{StateTypeID: stateTypeID, Value: value})
	}
	return values
}

// wire returns the thing in the shape GetThings reports, with the current
// state values embedded. Caller must hold the table lock.
func (record *thingRecord) wire() map[string]interface{} {
	return map[string]interface{}{
		"id":           record.ID,
		"thingClassId": record.ThingClassID,
		"name":         record.Name,
		"states":       record.stateValues(),
	}
}

// buildGarageDoorTable creates the simulated installation: one garage door
// stick of vendor Marantec with its state and action schema, door closed.
func buildGarageDoorTable() ([]things.Vendor, []things.ThingClass, []*thingRecord) {
	vendors := []things.Vendor{
		{ID: VendorID, Name: "marantec", DisplayName: "Marantec"},
	}
	thingClasses := []things.ThingClass{{
		ID:          StickThingClassID,
		VendorID:    VendorID,
		Name:        "maveoStick",
		DisplayName: "maveo Stick",
		StateTypes: []things.StateType{
			{ID: DoorStateTypeID, Name: "state", DisplayName: "State", Type: "QString"},
			{ID: VersionStateTypeID, Name: "currentVersion", DisplayName: "maveo-stick version", Type: "QString"},
		},
		ActionTypes: []things.ActionType{
			{ID: OpenActionTypeID, Name: "open", DisplayName: "Open"},
			{ID: CloseActionTypeID, Name: "close", DisplayName: "Close"},
		},
	}}
	door := &thingRecord{
		ID:           GarageDoorThingID,
		ThingClassID: StickThingClassID,
		Name:         "Garage Door",
		states: map[uuid.UUID]interface{}{
			DoorStateTypeID:    "closed",
			VersionStateTypeID: "1.2.3",
		},
	}
	return vendors, thingClasses, []*thingRecord{door}
}
