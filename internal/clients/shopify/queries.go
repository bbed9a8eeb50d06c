package shopify

const lookupVariantsQuery = `query LookupVariantsBySku($query: String!) {
  productVariants(first: 50, query: $query) {
    nodes {
      id
      sku
      displayName
      product {
        id
        handle
      }
      inventoryItem {
        id
        inventoryLevels(first: 50) {
          nodes {
            location {
              id
              name
            }
            quantities(names: ["available"]) {
              name
              quantity
            }
          }
        }
      }
    }
  }
}`

const inventoryAdjustMutation = `mutation inventoryAdjustQuantities($input: InventoryAdjustQuantitiesInput!) {
  inventoryAdjustQuantities(input: $input) {
    inventoryAdjustmentGroup {
      createdAt
      reason
      referenceDocumentUri
      changes(quantityNames: ["available"]) {
        name
        delta
        location {
          id
          name
        }
        item {
          id
          inventoryLevels(first: 50) {
            nodes {
              location {
                id
                name
              }
              quantities(names: ["available"]) {
                name
                quantity
              }
            }
          }
          variant {
            sku
            displayName
            product {
              id
              handle
            }
          }
        }
      }
    }
    userErrors {
      field
      message
      code
    }
  }
}`

const publishMutation = `mutation publishablePublish($id: ID!, $input: [PublicationInput!]!) {
  publishablePublish(id: $id, input: $input) {
    userErrors {
      field
      message
    }
  }
}`
