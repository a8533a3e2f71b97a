// Package provisioning exchanges the pre-shared provisioning key pair for
// durable per-device credentials.
//
// The exchange runs on an anonymous session opened with a well-known
// identity. The device publishes one request and waits, under a timeout,
// for the platform's answer:
//
//	-> /provision/request  {"deviceName":"smartoffice-a4cf120b3e91",
//	                        "provisionDeviceKey":"...","provisionDeviceSecret":"..."}
//	<- /provision/response {"status":"SUCCESS","credentialsType":"ACCESS_TOKEN",
//	                        "credentialsValue":"abc123"}
//
// Only ACCESS_TOKEN and MQTT_BASIC credentials are supported.
package provisioning
