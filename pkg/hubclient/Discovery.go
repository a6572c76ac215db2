package hubclient

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maveohome/maveolib-go/api"
	"github.com/maveohome/maveolib-go/pkg/jsonrpc"
	"github.com/maveohome/maveolib-go/pkg/things"
)

// wireThing is a thing as GetThings reports it, with the current state
// values embedded
type wireThing struct {
	ID           uuid.UUID           `json:"id"`
	ThingClassID uuid.UUID           `json:"thingClassId"`
	Name         string              `json:"name"`
	States       []things.StateValue `json:"states"`
}

// Discover loads vendors, thing classes and things from the hub in one
// sequential batch and seeds each thing's state cache: first from the
// states embedded in GetThings, then from a GetStateValues call per thing.
// Safe to call again to refresh the tables.
func (hubClient *HubClient) Discover(ctx context.Context) error {
	response, err := hubClient.SendCommand(ctx, api.MethodGetVendors, nil)
	if err != nil {
		return err
	}
	var vendorResult struct {
		Vendors []*things.Vendor `json:"vendors"`
	}
	if err = json.Unmarshal(response.Params, &vendorResult); err != nil {
		return &jsonrpc.ProtocolError{Reason: "Invalid GetVendors response", Cause: err}
	}

	response, err = hubClient.SendCommand(ctx, api.MethodGetThingClasses, nil)
	if err != nil {
		return err
	}
	var classResult struct {
		ThingClasses []*things.ThingClass `json:"thingClasses"`
	}
	if err = json.Unmarshal(response.Params, &classResult); err != nil {
		return &jsonrpc.ProtocolError{Reason: "Invalid GetThingClasses response", Cause: err}
	}

	response, err = hubClient.SendCommand(ctx, api.MethodGetThings, nil)
	if err != nil {
		return err
	}
	var thingResult struct {
		Things []wireThing `json:"things"`
	}
	if err = json.Unmarshal(response.Params, &thingResult); err != nil {
		return &jsonrpc.ProtocolError{Reason: "Invalid GetThings response", Cause: err}
	}

	discovered := make(map[uuid.UUID]*things.Thing, len(thingResult.Things))
	for _, entry := range thingResult.Things {
		thing := things.NewThing(entry.ID, entry.ThingClassID, entry.Name)
		for _, state := range entry.States {
			thing.SetStateValue(state.StateTypeID, state.Value)
		}
		if err = hubClient.seedStateValues(ctx, thing); err != nil {
			return err
		}
		discovered[thing.ID] = thing
	}

	hubClient.tableMutex.Lock()
	for _, vendor := range vendorResult.Vendors {
		hubClient.vendors[vendor.ID] = vendor
	}
	for _, class := range classResult.ThingClasses {
		hubClient.thingClasses[class.ID] = class
	}
	for id, thing := range discovered {
		// keep existing things, their caches and listeners stay valid
		if existing, found := hubClient.things[id]; found {
			for stateTypeID, value := range thing.StateValues() {
				existing.SetStateValue(stateTypeID, value)
			}
			continue
		}
		hubClient.things[id] = thing
	}
	hubClient.tableMutex.Unlock()

	logrus.Infof("HubClient.Discover: %d vendors, %d thing classes, %d things",
		len(vendorResult.Vendors), len(classResult.ThingClasses), len(thingResult.Things))
	return nil
}

// seedStateValues fetches a thing's current values into its cache
func (hubClient *HubClient) seedStateValues(ctx context.Context, thing *things.Thing) error {
	params := map[string]interface{}{"thingId": thing.ID.String()}
	response, err := hubClient.SendCommand(ctx, api.MethodGetStateValues, params)
	if err != nil {
		return err
	}
	var result struct {
		Values []things.StateValue `json:"values"`
	}
	if err = json.Unmarshal(response.Params, &result); err != nil {
		return &jsonrpc.ProtocolError{Reason: "Invalid GetStateValues response", Cause: err}
	}
	for _, state := range result.Values {
		thing.SetStateValue(state.StateTypeID, state.Value)
	}
	return nil
}

// Things returns all discovered things
func (hubClient *HubClient) Things() []*things.Thing {
	hubClient.tableMutex.RLock()
	defer hubClient.tableMutex.RUnlock()
	result := make([]*things.Thing, 0, len(hubClient.things))
	for _, thing := range hubClient.things {
		result = append(result, thing)
	}
	return result
}

// Thing returns a discovered thing by id, nil when unknown
func (hubClient *HubClient) Thing(id uuid.UUID) *things.Thing {
	hubClient.tableMutex.RLock()
	defer hubClient.tableMutex.RUnlock()
	return hubClient.things[id]
}

// ThingClass returns a discovered thing class by id, nil when unknown
func (hubClient *HubClient) ThingClass(id uuid.UUID) *things.ThingClass {
	hubClient.tableMutex.RLock()
	defer hubClient.tableMutex.RUnlock()
	return hubClient.thingClasses[id]
}

// Vendor returns a discovered vendor by id, nil when unknown
func (hubClient *HubClient) Vendor(id uuid.UUID) *things.Vendor {
	hubClient.tableMutex.RLock()
	defer hubClient.tableMutex.RUnlock()
	return hubClient.vendors[id]
}

// DescribeThing resolves a thing's name, manufacturer and model through its
// thing class and vendor. Empty strings for anything not discovered.
func (hubClient *HubClient) DescribeThing(id uuid.UUID) (name string, manufacturer string, model string) {
	thing := hubClient.Thing(id)
	if thing == nil {
		return "", "", ""
	}
	name = thing.Name
	if class := hubClient.ThingClass(thing.ThingClassID); class != nil {
		model = class.DisplayName
		if vendor := hubClient.Vendor(class.VendorID); vendor != nil {
			manufacturer = vendor.DisplayName
		}
	}
	return name, manufacturer, model
}

// ExecuteAction invokes an action on a thing.
//  params carries the action's parameter values, may be nil
func (hubClient *HubClient) ExecuteAction(ctx context.Context, thingID uuid.UUID,
	actionTypeID uuid.UUID, params []things.ActionParam) error {

	commandParams := map[string]interface{}{
		"thingId":      thingID.String(),
		"actionTypeId": actionTypeID.String(),
	}
	if len(params) > 0 {
		commandParams["params"] = params
	}
	_, err := hubClient.SendCommand(ctx, api.MethodExecuteAction, commandParams)
	return err
}

// GetStateValue fetches one current state value from the hub, bypassing the
// cache. Useful to re-seed after the notification channel was down.
func (hubClient *HubClient) GetStateValue(ctx context.Context, thingID uuid.UUID,
	stateTypeID uuid.UUID) (interface{}, error) {

	params := map[string]interface{}{
		"thingId":     thingID.String(),
		"stateTypeId": stateTypeID.String(),
	}
	response, err := hubClient.SendCommand(ctx, api.MethodGetStateValue, params)
	if err != nil {
		return nil, err
	}
	var result struct {
		Value interface{} `json:"value"`
	}
	if err = json.Unmarshal(response.Params, &result); err != nil {
		return nil, &jsonrpc.ProtocolError{Reason: "Invalid GetStateValue response", Cause: err}
	}
	return result.Value, nil
}

// GetStateTypes fetches the state schema of a thing class
func (hubClient *HubClient) GetStateTypes(ctx context.Context,
	thingClassID uuid.UUID) ([]things.StateType, error) {

	params := map[string]interface{}{"thingClassId": thingClassID.String()}
	response, err := hubClient.SendCommand(ctx, api.MethodGetStateTypes, params)
	if err != nil {
		return nil, err
	}
	var result struct {
		StateTypes []things.StateType `json:"stateTypes"`
	}
	if err = json.Unmarshal(response.Params, &result); err != nil {
		return nil, &jsonrpc.ProtocolError{Reason: "Invalid GetStateTypes response", Cause: err}
	}
	return result.StateTypes, nil
}

// GetActionTypes fetches the action schema of a thing class
func (hubClient *HubClient) GetActionTypes(ctx context.Context,
	thingClassID uuid.UUID) ([]things.ActionType, error) {

	params := map[string]interface{}{"thingClassId": thingClassID.String()}
	response, err := hubClient.SendCommand(ctx, api.MethodGetActionTypes, params)
	if err != nil {
		return nil, err
	}
	var result struct {
		ActionTypes []things.ActionType `json:"actionTypes"`
	}
	if err = json.Unmarshal(response.Params, &result); err != nil {
		return nil, &jsonrpc.ProtocolError{Reason: "Invalid GetActionTypes response", Cause: err}
	}
	return result.ActionTypes, nil
}
