package things_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maveohome/maveolib-go/pkg/things"
)

func TestStateCache(t *testing.T) {
	logrus.Infof("--- TestStateCache ---")
	thing := things.NewThing(uuid.New(), uuid.New(), "Garage Door")
	stateTypeID := uuid.New()

	_, found := thing.StateValue(stateTypeID)
	assert.False(t, found, "a never observed state is absent, not zero")

	thing.SetStateValue(stateTypeID, "closed")
	value, found := thing.StateValue(stateTypeID)
	require.True(t, found)
	assert.Equal(t, "closed", value)

	// updates overwrite
	thing.SetStateValue(stateTypeID, "open")
	value, _ = thing.StateValue(stateTypeID)
	assert.Equal(t, "open", value)
}

func TestStateValuesReturnsCopy(t *testing.T) {
	logrus.Infof("--- TestStateValuesReturnsCopy ---")
	thing := things.NewThing(uuid.New(), uuid.New(), "Garage Door")
	stateTypeID := uuid.New()
	thing.SetStateValue(stateTypeID, "closed")

	values := thing.StateValues()
	require.Len(t, values, 1)
	values[stateTypeID] = "tampered"

	value, _ := thing.StateValue(stateTypeID)
	assert.Equal(t, "closed", value, "mutating the returned map must not touch the cache")
}

func TestOnChange(t *testing.T) {
	logrus.Infof("--- TestOnChange ---")
	thing := things.NewThing(uuid.New(), uuid.New(), "Garage Door")
	stateTypeID := uuid.New()

	var mutex sync.Mutex
	var seen []interface{}
	remove := thing.OnChange(func(changedType uuid.UUID, value interface{}) {
		mutex.Lock()
		defer mutex.Unlock()
		assert.Equal(t, stateTypeID, changedType)
		seen = append(seen, value)
	})

	thing.SetStateValue(stateTypeID, "open")
	thing.SetStateValue(stateTypeID, "closed")
	mutex.Lock()
	assert.Equal(t, []interface{}{"open", "closed"}, seen)
	mutex.Unlock()

	// a removed listener is not invoked again
	remove()
	thing.SetStateValue(stateTypeID, "open")
	mutex.Lock()
	assert.Len(t, seen, 2)
	mutex.Unlock()
}

func TestConcurrentStateAccess(t *testing.T) {
	logrus.Infof("--- TestConcurrentStateAccess ---")
	thing := things.NewThing(uuid.New(), uuid.New(), "Garage Door")
	stateTypeID := uuid.New()
	remove := thing.OnChange(func(uuid.UUID, interface{}) {})
	defer remove()

	var waitGroup sync.WaitGroup
	for i := 0; i < 10; i++ {
		waitGroup.Add(2)
		go func(n int) {
			defer waitGroup.Done()
			for j := 0; j < 100; j++ {
				thing.SetStateValue(stateTypeID, n)
			}
		}(i)
		go func() {
			defer waitGroup.Done()
			for j := 0; j < 100; j++ {
				thing.StateValue(stateTypeID)
				thing.StateValues()
			}
		}()
	}
	waitGroup.Wait()

	_, found := thing.StateValue(stateTypeID)
	assert.True(t, found)
}

func TestThingClassTypeLookups(t *testing.T) {
	logrus.Infof("--- TestThingClassTypeLookups ---")
	class := &things.ThingClass{
		ID:          uuid.New(),
		Name:        "maveoStick",
		DisplayName: "maveo Stick",
		StateTypes: []things.StateType{
			{ID: uuid.New(), Name: "state", DisplayName: "State", Type: "QString"},
		},
		ActionTypes: []things.ActionType{
			{ID: uuid.New(), Name: "open", DisplayName: "Open"},
		},
	}

	stateType := class.StateType("State")
	require.NotNil(t, stateType)
	assert.Equal(t, "state", stateType.Name)
	assert.Nil(t, class.StateType("Humidity"))

	actionType := class.ActionType("Open")
	require.NotNil(t, actionType)
	assert.Equal(t, "open", actionType.Name)
	assert.Nil(t, class.ActionType("Close"))
}
