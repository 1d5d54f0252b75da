package validators

import "go.mongodb.org/mongo-driver/bson"

var ReconciliationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"date_id",
			"payment_intent_id",
			"reason",
			"resolved",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"date_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"payment_intent_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"reason": bson.M{
				"bsonType": "string",
				"enum": []string{
					"date_missing",
					"claim_not_pending",
					"claim_taken_over",
				},
			},

			"resolved": bson.M{
				"bsonType": "bool",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
