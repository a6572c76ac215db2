package hubsim

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maveohome/maveolib-go/api"
	"github.com/maveohome/maveolib-go/pkg/jsonrpc"
	"github.com/maveohome/maveolib-go/pkg/things"
)

// inboundRequest as received on either channel
type inboundRequest struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Token  string          `json:"token"`
}

// outboundResponse to a received request
type outboundResponse struct {
	ID     int         `json:"id"`
	Status string      `json:"status"`
	Params interface{} `json:"params,omitempty"`
	Error  string      `json:"error,omitempty"`

	// invoked after the response reached the wire, for follow-up
	// notifications that must not overtake the response
	after func()
}

// outboundNotification pushed to a connection
type outboundNotification struct {
	Name   string      `json:"notification"`
	Params interface{} `json:"params,omitempty"`
}

// execute runs one command and returns the response to send back
//  write delivers follow-up notifications on the same connection
func (sim *HubSim) execute(request *inboundRequest, write func(interface{}) error) *outboundResponse {
	sim.recordMutex.Lock()
	sim.receivedRequests = append(sim.receivedRequests, ReceivedRequest{
		Method: request.Method, Token: request.Token})
	sim.recordMutex.Unlock()

	response := &outboundResponse{ID: request.ID, Status: jsonrpc.StatusSuccess}
	switch request.Method {

	case jsonrpc.MethodHello:
		response.Params = sim.helloParams()

	case jsonrpc.MethodRequestPushButtonAuth:
		if !sim.config.PushButtonAvailable {
			response.Status = jsonrpc.StatusError
			response.Error = "Push button authentication is not available"
			break
		}
		var pairing struct {
			DeviceName string `json:"deviceName"`
		}
		if len(request.Params) > 0 {
			json.Unmarshal(request.Params, &pairing)
		}
		response.after = func() {
			go sim.completePushButton(pairing.DeviceName, write)
		}

	case jsonrpc.MethodSetNotificationStatus:
		if !sim.authorized(request) {
			response.Status = jsonrpc.StatusUnauthorized
			response.Error = "Invalid token"
			break
		}
		response.Params = map[string]interface{}{"enabled": true}

	default:
		if !sim.authorized(request) {
			response.Status = jsonrpc.StatusUnauthorized
			response.Error = "Invalid token"
			break
		}
		params, errText := sim.executeIntegrations(request)
		if errText != "" {
			response.Status = jsonrpc.StatusError
			response.Error = errText
		} else {
			response.Params = params
		}
	}
	return response
}

// executeIntegrations serves the Integrations namespace against the thing table
// Returns the response params, or an error text for an error response
func (sim *HubSim) executeIntegrations(request *inboundRequest) (interface{}, string) {
	var args struct {
		ThingID       uuid.UUID            `json:"thingId"`
		ThingClassID  uuid.UUID            `json:"thingClassId"`
		StateTypeID   uuid.UUID            `json:"stateTypeId"`
		ActionTypeID  uuid.UUID            `json:"actionTypeId"`
		ThingClassIDs []uuid.UUID          `json:"thingClassIds"`
		Params        []things.ActionParam `json:"params"`
	}
	if len(request.Params) > 0 {
		if err := json.Unmarshal(request.Params, &args); err != nil {
			return nil, fmt.Sprintf("Invalid parameters: %s", err)
		}
	}

	switch request.Method {

	case api.MethodGetVendors:
		sim.tableMutex.RLock()
		defer sim.tableMutex.RUnlock()
		return map[string]interface{}{"vendors": sim.vendors}, ""

	case api.MethodGetThingClasses:
		sim.tableMutex.RLock()
		defer sim.tableMutex.RUnlock()
		classes := sim.thingClasses
		if len(args.ThingClassIDs) > 0 {
			filtered := make([]things.ThingClass, 0, len(args.ThingClassIDs))
			for _, class := range sim.thingClasses {
				for _, wanted := range args.ThingClassIDs {
					if class.ID == wanted {
						filtered = append(filtered, class)
					}
				}
			}
			classes = filtered
		}
		return map[string]interface{}{"thingClasses": classes}, ""

	case api.MethodGetThings:
		sim.tableMutex.RLock()
		defer sim.tableMutex.RUnlock()
		wires := make([]map[string]interface{}, 0, len(sim.things))
		for _, record := range sim.things {
			wires = append(wires, record.wire())
		}
		return map[string]interface{}{"things": wires}, ""

	case api.MethodGetStateTypes:
		sim.tableMutex.RLock()
		defer sim.tableMutex.RUnlock()
		for i := range sim.thingClasses {
			if sim.thingClasses[i].ID == args.ThingClassID {
				return map[string]interface{}{"stateTypes": sim.thingClasses[i].StateTypes}, ""
			}
		}
		return nil, "Thing class not found"

	case api.MethodGetActionTypes:
		sim.tableMutex.RLock()
		defer sim.tableMutex.RUnlock()
		for i := range sim.thingClasses {
			if sim.thingClasses[i].ID == args.ThingClassID {
				return map[string]interface{}{"actionTypes": sim.thingClasses[i].ActionTypes}, ""
			}
		}
		return nil, "Thing class not found"

	case api.MethodGetStateValue:
		sim.tableMutex.RLock()
		defer sim.tableMutex.RUnlock()
		record := sim.lookupThing(args.ThingID)
		if record == nil {
			return nil, "Thing not found"
		}
		value, found := record.states[args.StateTypeID]
		if !found {
			return nil, "State type not found"
		}
		return map[string]interface{}{"value": value}, ""

	case api.MethodGetStateValues:
		sim.tableMutex.RLock()
		defer sim.tableMutex.RUnlock()
		record := sim.lookupThing(args.ThingID)
		if record == nil {
			return nil, "Thing not found"
		}
		return map[string]interface{}{"values": record.stateValues()}, ""

	case api.MethodExecuteAction:
		sim.tableMutex.RLock()
		record := sim.lookupThing(args.ThingID)
		sim.tableMutex.RUnlock()
		if record == nil {
			return nil, "Thing not found"
		}
		switch args.ActionTypeID {
		case OpenActionTypeID:
			sim.SetThingState(args.ThingID, DoorStateTypeID, "open")
		case CloseActionTypeID:
			sim.SetThingState(args.ThingID, DoorStateTypeID, "closed")
		default:
			return nil, "Action type not found"
		}
		return map[string]interface{}{}, ""
	}
	return nil, fmt.Sprintf("Unknown method '%s'", request.Method)
}

// completePushButton simulates the button press: after the configured delay
// it emits the pairing outcome on the same connection the request came in on.
// Scripted failures are delivered first, each as its own notification.
func (sim *HubSim) completePushButton(deviceName string, write func(interface{}) error) {
	if sim.config.PushButtonDelay > 0 {
		time.Sleep(sim.config.PushButtonDelay)
	}
	sim.recordMutex.Lock()
	failures := sim.pushButtonFailures
	sim.pushButtonFailures = 0
	sim.recordMutex.Unlock()

	for i := 0; i < failures; i++ {
		write(&outboundNotification{
			Name:   jsonrpc.NotificationPushButtonAuthFinished,
			Params: map[string]interface{}{"success": false},
		})
	}

	token := sim.issuer.IssueToken(deviceName)
	err := write(&outboundNotification{
		Name:   jsonrpc.NotificationPushButtonAuthFinished,
		Params: map[string]interface{}{"success": true, "token": token},
	})
	if err != nil {
		logrus.Warningf("HubSim: pairing confirmation for '%s' could not be delivered: %s", deviceName, err)
		return
	}
	logrus.Infof("HubSim: paired device '%s'", deviceName)
}

// authorized checks the token of a request that needs authentication
func (sim *HubSim) authorized(request *inboundRequest) bool {
	if !sim.config.AuthRequired {
		return true
	}
	return sim.issuer.VerifyToken(request.Token)
}

// helloParams builds the Hello response with the hub identity and auth flags
func (sim *HubSim) helloParams() map[string]interface{} {
	return map[string]interface{}{
		"server":                  "nymea",
		"name":                    sim.config.ServerName,
		"version":                 sim.config.Version,
		"protocol version":        sim.config.ProtocolVersion,
		"language":                "en_US",
		"initialSetupRequired":    sim.config.InitialSetupRequired,
		"authenticationRequired":  sim.config.AuthRequired,
		"pushButtonAuthAvailable": sim.config.PushButtonAvailable,
	}
}
